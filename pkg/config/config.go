// Package config loads layered configuration for the kdc, appserver and
// kclient binaries (CLI flag > environment variable (KERB4_*) > YAML file >
// built-in default) and writes the sample files kadmin's `config init`
// produces.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix every environment-variable override uses, e.g.
// KERB4_REALM, KERB4_LOGGING_LEVEL.
const EnvPrefix = "KERB4"

// LoggingConfig controls internal/logger's handler selection.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=text json"`
}

// CommonConfig is embedded by every binary's own config struct.
type CommonConfig struct {
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Realm is carried for display/logging; cross-realm operation is out of
	// scope so every lookup implicitly happens within this one realm.
	Realm string `mapstructure:"realm" yaml:"realm" validate:"required"`

	// EpochFile is the path epoch.txt is read from at startup.
	EpochFile string `mapstructure:"epoch_file" yaml:"epoch_file" validate:"required"`

	// InitialWallClock overrides EpochFile's contents with a literal
	// UNIX-seconds origin, mirroring each binary's --initial-wall-clock flag.
	InitialWallClock *int64 `mapstructure:"initial_wall_clock" yaml:"initial_wall_clock,omitempty"`

	// CryptoSuite names the etype.EType this deployment encrypts under
	// (see internal/krbcrypto). Empty selects the package default.
	CryptoSuite string `mapstructure:"crypto_suite" yaml:"crypto_suite,omitempty"`
}

// MetricsConfig controls the optional /metrics and /healthz HTTP server
// mounted alongside a TCP listener.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// KDCConfig configures the combined AS+TGS binary.
type KDCConfig struct {
	CommonConfig `mapstructure:",squash" yaml:",inline"`

	ASAddr  string `mapstructure:"as_addr" yaml:"as_addr" validate:"required"`
	TGSAddr string `mapstructure:"tgs_addr" yaml:"tgs_addr" validate:"required"`

	TGSName   string `mapstructure:"tgs_name" yaml:"tgs_name" validate:"required"`
	TGSSecret string `mapstructure:"tgs_secret" yaml:"tgs_secret" validate:"required"`

	// DefaultTGTLifetime and DefaultSTLifetime seed the TGS principal
	// record when the store has none yet. Once a record exists (via kadmin
	// or an earlier run), the serving path reads lifetimes from the store
	// and these values are ignored.
	DefaultTGTLifetime int64 `mapstructure:"default_tgt_lifetime" yaml:"default_tgt_lifetime" validate:"gt=0"`
	DefaultSTLifetime  int64 `mapstructure:"default_st_lifetime" yaml:"default_st_lifetime" validate:"gt=0"`

	// PrincipalDBPath, if set, opens a durable SQLStore at this path instead
	// of the default in-memory MemStore.
	PrincipalDBPath string `mapstructure:"principal_db_path" yaml:"principal_db_path,omitempty"`

	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// AppServerConfig configures one application server (V) binary.
type AppServerConfig struct {
	CommonConfig `mapstructure:",squash" yaml:",inline"`

	Name   string `mapstructure:"name" yaml:"name" validate:"required"`
	Secret string `mapstructure:"secret" yaml:"secret" validate:"required"`
	Addr   string `mapstructure:"addr" yaml:"addr" validate:"required"`

	PrincipalDBPath string `mapstructure:"principal_db_path" yaml:"principal_db_path,omitempty"`

	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// ClientConfig configures the kclient binary.
type ClientConfig struct {
	CommonConfig `mapstructure:",squash" yaml:",inline"`

	IDc      string `mapstructure:"idc" yaml:"idc" validate:"required"`
	Password string `mapstructure:"password" yaml:"password" validate:"required"`

	// ADc is the client's own address as the AS/TGS/V will observe it on
	// the wire. The AS records the TCP peer address it sees at AS_REQ time
	// as the ticket's ADc; this must match that same address or
	// every subsequent authenticator fails address_mismatch. On a flat
	// network behind no NAT this is just the client's outbound IP.
	ADc string `mapstructure:"adc" yaml:"adc" validate:"required"`

	ASAddr  string `mapstructure:"as_addr" yaml:"as_addr" validate:"required"`
	TGSAddr string `mapstructure:"tgs_addr" yaml:"tgs_addr" validate:"required"`
	IDtgs   string `mapstructure:"idtgs" yaml:"idtgs" validate:"required"`

	// Target is the default application server principal to call.
	Target     string `mapstructure:"target" yaml:"target" validate:"required"`
	TargetAddr string `mapstructure:"target_addr" yaml:"target_addr" validate:"required"`

	CacheDir string `mapstructure:"cache_dir" yaml:"cache_dir" validate:"required"`

	// Repeat makes the client place two application calls, proving cache
	// reuse of the service ticket obtained on the first call.
	Repeat bool `mapstructure:"repeat" yaml:"repeat"`

	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// Defaults for fields a config file or environment need not set.
func DefaultLogging() LoggingConfig {
	return LoggingConfig{Level: "info", Format: "text"}
}

func DefaultKDCConfig() KDCConfig {
	return KDCConfig{
		CommonConfig: CommonConfig{
			Logging:   DefaultLogging(),
			Realm:     "KERB4",
			EpochFile: "epoch.txt",
		},
		ASAddr:             ":6000",
		TGSAddr:            ":6001",
		DefaultTGTLifetime: 10,
		DefaultSTLifetime:  5,
		Metrics:            MetricsConfig{Enabled: true, Addr: ":9100"},
	}
}

func DefaultAppServerConfig() AppServerConfig {
	return AppServerConfig{
		CommonConfig: CommonConfig{
			Logging:   DefaultLogging(),
			Realm:     "KERB4",
			EpochFile: "epoch.txt",
		},
		Addr:    ":7000",
		Metrics: MetricsConfig{Enabled: true, Addr: ":9101"},
	}
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		CommonConfig: CommonConfig{
			Logging:   DefaultLogging(),
			Realm:     "KERB4",
			EpochFile: "epoch.txt",
		},
		ADc:            "127.0.0.1",
		ASAddr:         "127.0.0.1:6000",
		TGSAddr:        "127.0.0.1:6001",
		CacheDir:       ".kerb4-cache",
		RequestTimeout: 5 * time.Second,
	}
}

var validate = validator.New()

// Load reads a config struct from file (optional, may not exist), overlaid
// by KERB4_*-prefixed environment variables, overlaid in turn by whatever
// the caller's configure hook sets on v (each binary sets the flags the user
// passed). def is the struct already populated with defaults; Load decodes
// viper's merged view into a copy of def and validates the result. An
// environment variable is applied only to a key that the file or configure
// sets: the defaults live in def, not in v, so a KERB4_* variable for a key
// absent from both is not read.
func Load[T any](file string, def T, configure func(v *viper.Viper)) (T, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return def, fmt.Errorf("read config file %s: %w", file, err)
			}
		}
	}

	if configure != nil {
		configure(v)
	}

	out := def
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
		TagName: "mapstructure",
	})
	if err != nil {
		return def, fmt.Errorf("build config decoder: %w", err)
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return def, fmt.Errorf("decode config: %w", err)
	}

	if err := validate.Struct(out); err != nil {
		return def, fmt.Errorf("validate config: %w", err)
	}
	return out, nil
}

// MustLoad is Load, exiting the process on failure; used by each binary's
// main, matching a configuration failure being fatal at startup.
func MustLoad[T any](file string, def T, configure func(v *viper.Viper)) T {
	cfg, err := Load(file, def, configure)
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}
	return cfg
}

// SaveConfig writes cfg to path as YAML, for `kadmin config init`.
func SaveConfig(path string, cfg any) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file %s: %w", path, err)
	}
	return nil
}
