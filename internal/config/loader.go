package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/thruflo/taskwatch/internal/logging"
	"github.com/thruflo/taskwatch/internal/progress"
	"gopkg.in/yaml.v3"
)

// Default values for Config.
const (
	DefaultClientHost    = "localhost:8375"
	DefaultEncoding      = "command"
	DefaultDecoding      = "auto"
	DefaultServerHost    = "127.0.0.1"
	DefaultServerPort    = 8375
	DefaultConnectLimit  = 30
	DefaultConnectWindow = time.Minute
	DefaultLogLevel      = "warn"
)

// EnvPrefix prefixes environment overrides, e.g. TASKWATCH_CLIENT_HOST.
const EnvPrefix = "TASKWATCH"

// Dir is the directory holding config.yaml under a base path.
const Dir = ".taskwatch"

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Client: ClientConfig{
			Host:     DefaultClientHost,
			Route:    progress.DefaultRoute,
			Interval: progress.DefaultInterval,
			Encoding: DefaultEncoding,
			Decoding: DefaultDecoding,
		},
		Server: ServerConfig{
			Host:          DefaultServerHost,
			Port:          DefaultServerPort,
			Route:         progress.DefaultRoute,
			ConnectLimit:  DefaultConnectLimit,
			ConnectWindow: DefaultConnectWindow,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
	}
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// Path returns the config file location under basePath.
func Path(basePath string) string {
	return filepath.Join(basePath, Dir, "config.yaml")
}

// LoadConfig reads .taskwatch/config.yaml from the given base path and
// applies TASKWATCH_* environment overrides. A missing file yields the
// defaults. Missing fields keep their defaults.
func LoadConfig(basePath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := Path(basePath)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = nil
	}

	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("client.origin", d.Client.Origin)
	v.SetDefault("client.host", d.Client.Host)
	v.SetDefault("client.secure", d.Client.Secure)
	v.SetDefault("client.deploy_path", d.Client.DeployPath)
	v.SetDefault("client.route", d.Client.Route)
	v.SetDefault("client.interval", d.Client.Interval)
	v.SetDefault("client.encoding", d.Client.Encoding)
	v.SetDefault("client.decoding", d.Client.Decoding)

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.deploy_path", d.Server.DeployPath)
	v.SetDefault("server.route", d.Server.Route)
	v.SetDefault("server.scenario", d.Server.Scenario)
	v.SetDefault("server.connect_limit", d.Server.ConnectLimit)
	v.SetDefault("server.connect_window", d.Server.ConnectWindow)
	// Lists have no scalar default; binding keeps the env override working.
	_ = v.BindEnv("server.allowed_origins")

	v.SetDefault("log.level", d.Log.Level)
}

// ValidateConfig checks that all config values are valid.
func ValidateConfig(cfg *Config) error {
	if err := ValidateClientConfig(&cfg.Client); err != nil {
		return err
	}
	if err := ValidateServerConfig(&cfg.Server); err != nil {
		return err
	}
	if _, ok := logging.ParseLevel(cfg.Log.Level); !ok {
		return ValidationError{Field: "log.level", Message: "must be one of debug, info, warn, error"}
	}
	return nil
}

// ValidateClientConfig checks that client config values are valid.
func ValidateClientConfig(cfg *ClientConfig) error {
	if cfg.Origin != "" {
		if _, err := progress.TargetFromOrigin(cfg.Origin, "", "", "-"); err != nil {
			return ValidationError{Field: "client.origin", Message: err.Error()}
		}
	} else if strings.TrimSpace(cfg.Host) == "" {
		return ValidationError{Field: "client.host", Message: "required when client.origin is empty"}
	}
	if cfg.Interval <= 0 {
		return ValidationError{Field: "client.interval", Message: "must be positive"}
	}
	if _, err := progress.EncoderFor(cfg.Encoding); err != nil {
		return ValidationError{Field: "client.encoding", Message: err.Error()}
	}
	if _, err := progress.ParseDecodeMode(cfg.Decoding); err != nil {
		return ValidationError{Field: "client.decoding", Message: err.Error()}
	}
	return nil
}

// ValidateServerConfig checks that server config values are valid.
func ValidateServerConfig(cfg *ServerConfig) error {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return ValidationError{Field: "server.port", Message: "must be between 0 and 65535"}
	}
	if cfg.ConnectLimit < 0 {
		return ValidationError{Field: "server.connect_limit", Message: "must not be negative"}
	}
	if cfg.ConnectLimit > 0 && cfg.ConnectWindow <= 0 {
		return ValidationError{Field: "server.connect_window", Message: "must be positive when connect_limit is set"}
	}
	for _, origin := range cfg.AllowedOrigins {
		if strings.Trim(strings.TrimSpace(origin), ".") == "" {
			return ValidationError{Field: "server.allowed_origins", Message: "entries must not be empty"}
		}
	}
	return nil
}

// WriteConfig writes cfg to .taskwatch/config.yaml under basePath,
// creating the directory as needed.
func WriteConfig(basePath string, cfg *Config) error {
	if err := ValidateConfig(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	configPath := Path(basePath)
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
