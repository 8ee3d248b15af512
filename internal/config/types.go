package config

import "time"

// ClientConfig holds the defaults of the watch command.
type ClientConfig struct {
	// Origin is a page origin (e.g. https://example.com) the scheme and
	// host are derived from. It wins over Host and Secure when set.
	Origin     string        `mapstructure:"origin" yaml:"origin,omitempty"`
	Host       string        `mapstructure:"host" yaml:"host"`
	Secure     bool          `mapstructure:"secure" yaml:"secure"`
	DeployPath string        `mapstructure:"deploy_path" yaml:"deploy_path"`
	Route      string        `mapstructure:"route" yaml:"route"`
	Interval   time.Duration `mapstructure:"interval" yaml:"interval"`
	Encoding   string        `mapstructure:"encoding" yaml:"encoding"`
	Decoding   string        `mapstructure:"decoding" yaml:"decoding"`
}

// ServerConfig holds the settings of the debug progress server.
type ServerConfig struct {
	Host       string `mapstructure:"host" yaml:"host"`
	Port       int    `mapstructure:"port" yaml:"port"`
	DeployPath string `mapstructure:"deploy_path" yaml:"deploy_path"`
	Route      string `mapstructure:"route" yaml:"route"`
	Scenario   string `mapstructure:"scenario" yaml:"scenario,omitempty"`

	// ConnectLimit is the number of websocket upgrades one remote IP may
	// attempt per ConnectWindow. Zero disables limiting.
	ConnectLimit  int           `mapstructure:"connect_limit" yaml:"connect_limit"`
	ConnectWindow time.Duration `mapstructure:"connect_window" yaml:"connect_window"`

	// AllowedOrigins lists the domains whose pages may open progress
	// streams. Empty allows any origin.
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// Config represents the .taskwatch/config.yaml file.
type Config struct {
	Client ClientConfig `mapstructure:"client" yaml:"client"`
	Server ServerConfig `mapstructure:"server" yaml:"server"`
	Log    LogConfig    `mapstructure:"log" yaml:"log"`
}
