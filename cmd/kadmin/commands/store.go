package commands

import (
	"fmt"

	"github.com/kerb4/kerb4/pkg/principal"
)

func openStore() (principal.Store, error) {
	store, err := principal.OpenSQLStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open principal database %s: %w", dbPath, err)
	}
	return store, nil
}
