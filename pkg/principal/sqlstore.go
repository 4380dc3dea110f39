package principal

import (
	"context"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// principalRow is the gorm model backing SQLStore. Kind and Name (the
// primary name, without realm) together form the natural key, mirroring the
// composite lookup MemStore does with kindAndName.
type principalRow struct {
	Kind                      int    `gorm:"primaryKey"`
	Name                      string `gorm:"primaryKey"`
	Realm                     string
	Secret                    string
	Address                   string
	DefaultTGTLifetimeMinutes int
	DefaultSTLifetimeMinutes  int
}

func (principalRow) TableName() string { return "principals" }

// SQLStore implements Store on top of gorm, giving a deployment a principal
// database that survives restarts without standing up a separate database
// server. It is the durable alternative to MemStore; both satisfy the same
// Store interface so the AS/TGS/V binaries don't know which one they got.
type SQLStore struct {
	db *gorm.DB
}

// OpenSQLStore opens (creating if necessary) a SQLite-backed principal
// database at path.
func OpenSQLStore(path string) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open principal database: %w", err)
	}
	if err := db.AutoMigrate(&principalRow{}); err != nil {
		return nil, fmt.Errorf("migrate principal database: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) get(ctx context.Context, kind Kind, name string) (Principal, error) {
	var row principalRow
	err := s.db.WithContext(ctx).
		Where("kind = ? AND name = ?", int(kind), name).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Principal{}, ErrUnknownPrincipal
	}
	if err != nil {
		return Principal{}, fmt.Errorf("query principal: %w", err)
	}
	return fromRow(row), nil
}

// GetClient returns the client principal named name.
func (s *SQLStore) GetClient(ctx context.Context, name string) (Principal, error) {
	return s.get(ctx, KindClient, name)
}

// GetService returns the application server principal named name.
func (s *SQLStore) GetService(ctx context.Context, name string) (Principal, error) {
	return s.get(ctx, KindService, name)
}

// GetTGS returns the ticket-granting service principal named name.
func (s *SQLStore) GetTGS(ctx context.Context, name string) (Principal, error) {
	return s.get(ctx, KindTGS, name)
}

// Put inserts or replaces a principal record.
func (s *SQLStore) Put(ctx context.Context, p Principal) error {
	row := toRow(p)
	err := s.db.WithContext(ctx).
		Where("kind = ? AND name = ?", row.Kind, row.Name).
		Save(&row).Error
	if err != nil {
		return fmt.Errorf("save principal: %w", err)
	}
	return nil
}

// List returns every principal of the given kind.
func (s *SQLStore) List(ctx context.Context, kind Kind) ([]Principal, error) {
	var rows []principalRow
	if err := s.db.WithContext(ctx).Where("kind = ?", int(kind)).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list principals: %w", err)
	}
	out := make([]Principal, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(row))
	}
	return out, nil
}

func toRow(p Principal) principalRow {
	return principalRow{
		Kind:                      int(p.Kind),
		Name:                      p.Name.Primary,
		Realm:                     p.Name.Realm,
		Secret:                    p.Secret,
		Address:                   p.Address,
		DefaultTGTLifetimeMinutes: p.DefaultTGTLifetimeMinutes,
		DefaultSTLifetimeMinutes:  p.DefaultSTLifetimeMinutes,
	}
}

func fromRow(row principalRow) Principal {
	return Principal{
		Name:                      Name{Primary: row.Name, Realm: row.Realm},
		Kind:                      Kind(row.Kind),
		Secret:                    row.Secret,
		Address:                   row.Address,
		DefaultTGTLifetimeMinutes: row.DefaultTGTLifetimeMinutes,
		DefaultSTLifetimeMinutes:  row.DefaultSTLifetimeMinutes,
	}
}
