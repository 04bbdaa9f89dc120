package config

import (
	"errors"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/sweep/internal/runtime"
)

// Oracle backends offered by InitOptions.
const (
	OracleStatic = "static"
	OracleSQLite = "sqlite"
	OracleRedis  = "redis"
)

// InitOptions are the answers collected by `sweep config init`.
type InitOptions struct {
	ServerRole string
	Oracle     string
	RedisURL   string
	DataDir    string

	EnableCleanup bool
	Telemetry     bool

	GatewayBind  string
	GatewayToken string

	LogLevel  string
	LogFormat string
}

// DefaultInitOptions returns the answers used by `sweep config init --defaults`.
func DefaultInitOptions() InitOptions {
	return InitOptions{
		ServerRole:    "single",
		Oracle:        OracleSQLite,
		DataDir:       "${SWEEP_DATA_DIR:-./data}",
		EnableCleanup: true,
		Telemetry:     true,
		GatewayBind:   "127.0.0.1:8080",
		GatewayToken:  "${SWEEP_GATEWAY_TOKEN:-}",
		LogLevel:      "info",
		LogFormat:     "text",
	}
}

// Validate checks the answers before rendering.
func (o InitOptions) Validate() error {
	var errs []error
	if _, err := runtime.ParseServerRole(o.ServerRole); err != nil {
		errs = append(errs, err)
	}
	if !slices.Contains([]string{OracleStatic, OracleSQLite, OracleRedis}, o.Oracle) {
		errs = append(errs, fmt.Errorf("config: unknown oracle %q", o.Oracle))
	}
	if o.Oracle == OracleRedis && o.RedisURL == "" {
		errs = append(errs, errors.New("config: redis oracle requires a URL"))
	}
	return errors.Join(errs...)
}

type initDocument struct {
	Version string         `yaml:"version"`
	Logging initLogging    `yaml:"logging"`
	Runtime RuntimeConfig  `yaml:"runtime"`
	Modules map[string]any `yaml:"modules"`
}

type initLogging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Render produces a configuration file from opts.
func Render(opts InitOptions) ([]byte, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	modules := map[string]any{
		"scheduler": map[string]any{"name": "default"},
	}

	switch opts.Oracle {
	case OracleStatic:
		modules["maindom.static"] = map[string]any{"owner": true}
	case OracleSQLite:
		modules["maindom.sqlite"] = map[string]any{
			"path": opts.DataDir + "/maindom.db",
			"ttl":  "30s",
		}
	case OracleRedis:
		modules["maindom.redis"] = map[string]any{
			"url": opts.RedisURL,
			"ttl": "30s",
		}
	}

	if opts.EnableCleanup {
		modules["versions.sqlite"] = map[string]any{"path": opts.DataDir + "/versions.db"}
		modules["cleanup.content_versions"] = map[string]any{
			"enable_cleanup":                       true,
			"initial_delay":                        "3m",
			"period":                               "1h",
			"keep_all_versions_newer_than_days":    7,
			"keep_latest_version_per_day_for_days": 90,
		}
	}

	if opts.Telemetry {
		modules["telemetry"] = map[string]any{"namespace": "sweep"}
	}

	if opts.GatewayBind != "" {
		gw := map[string]any{"bind": opts.GatewayBind}
		if opts.GatewayToken != "" {
			gw["auth"] = map[string]any{"bearer_token": opts.GatewayToken}
		}
		modules["gateway.http"] = gw
	}

	doc := initDocument{
		Version: "1",
		Logging: initLogging{Level: opts.LogLevel, Format: opts.LogFormat},
		Runtime: RuntimeConfig{ServerRole: opts.ServerRole},
		Modules: modules,
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("config: rendering: %w", err)
	}
	return out, nil
}
