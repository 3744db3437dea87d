package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	GraphHopper GraphHopperConfig `mapstructure:"graphhopper"`
	Nominatim   NominatimConfig   `mapstructure:"nominatim"`
	Routing     RoutingConfig     `mapstructure:"routing"`
	Database    DatabaseConfig    `mapstructure:"database"`
	NATS        NATSConfig        `mapstructure:"nats"`
	Valkey      ValkeyConfig      `mapstructure:"valkey"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
	// SessionTTLMinutes is how long an editing session survives without
	// activity before the janitor discards it.
	SessionTTLMinutes int `mapstructure:"session_ttl_minutes"`
}

// GraphHopperConfig configures the routing-oracle client.
type GraphHopperConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	Profile        string `mapstructure:"profile"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// NominatimConfig configures the geocoding collaborator.
type NominatimConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// RoutingConfig exposes the loop-engine tunables. The defaults are the
// empirically tuned values; they are configuration, not constants, so
// deployments can adjust them without a rebuild.
type RoutingConfig struct {
	MaxRetries             int     `mapstructure:"max_retries"`
	MaxUnroutableAttempts  int     `mapstructure:"max_unroutable_attempts"`
	DistanceTolerance      float64 `mapstructure:"distance_tolerance"`
	StarRotationDeg        float64 `mapstructure:"star_rotation_deg"`
	UnroutableRotationDeg  float64 `mapstructure:"unroutable_rotation_deg"`
	UnroutableRadiusShrink float64 `mapstructure:"unroutable_radius_shrink"`
	StretchFactor          float64 `mapstructure:"stretch_factor"`
	ShapeTrimFraction      float64 `mapstructure:"shape_trim_fraction"`
	ShapeHubThreshold      float64 `mapstructure:"shape_hub_threshold"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	OTLPAddr    string `mapstructure:"otlp_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 60)
	v.SetDefault("server.session_ttl_minutes", 30)
	v.SetDefault("graphhopper.base_url", "https://graphhopper.com/api/1")
	v.SetDefault("graphhopper.api_key", "")
	v.SetDefault("graphhopper.profile", "bike")
	v.SetDefault("graphhopper.timeout_seconds", 30)
	v.SetDefault("nominatim.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("nominatim.timeout_seconds", 10)
	v.SetDefault("routing.max_retries", 3)
	v.SetDefault("routing.max_unroutable_attempts", 7)
	v.SetDefault("routing.distance_tolerance", 0.2)
	v.SetDefault("routing.star_rotation_deg", 30.0)
	v.SetDefault("routing.unroutable_rotation_deg", 45.0)
	v.SetDefault("routing.unroutable_radius_shrink", 0.95)
	v.SetDefault("routing.stretch_factor", 1.3)
	v.SetDefault("routing.shape_trim_fraction", 0.10)
	v.SetDefault("routing.shape_hub_threshold", 0.25)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "veloloop")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "veloloop")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.otlp_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: VELOLOOP_GRAPHHOPPER_BASE_URL → graphhopper.base_url
	v.SetEnvPrefix("VELOLOOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.GraphHopper.BaseURL == "" {
		errs = append(errs, "graphhopper.base_url is required")
	}
	if c.GraphHopper.Profile == "" {
		errs = append(errs, "graphhopper.profile is required")
	}
	if c.GraphHopper.TimeoutSeconds <= 0 {
		errs = append(errs, "graphhopper.timeout_seconds must be positive")
	}
	if c.Nominatim.BaseURL == "" {
		errs = append(errs, "nominatim.base_url is required")
	}
	if c.Routing.MaxRetries < 0 {
		errs = append(errs, "routing.max_retries must not be negative")
	}
	if c.Routing.MaxUnroutableAttempts < 1 {
		errs = append(errs, "routing.max_unroutable_attempts must be at least 1")
	}
	if c.Routing.DistanceTolerance <= 0 || c.Routing.DistanceTolerance >= 1 {
		errs = append(errs, fmt.Sprintf("routing.distance_tolerance must be in (0, 1), got %g", c.Routing.DistanceTolerance))
	}
	if c.Routing.UnroutableRadiusShrink <= 0 || c.Routing.UnroutableRadiusShrink > 1 {
		errs = append(errs, "routing.unroutable_radius_shrink must be in (0, 1]")
	}
	if c.Routing.StretchFactor <= 0 {
		errs = append(errs, "routing.stretch_factor must be positive")
	}
	if c.Routing.ShapeTrimFraction < 0 || c.Routing.ShapeTrimFraction >= 0.5 {
		errs = append(errs, "routing.shape_trim_fraction must be in [0, 0.5)")
	}
	if c.Routing.ShapeHubThreshold <= 0 || c.Routing.ShapeHubThreshold >= 1 {
		errs = append(errs, "routing.shape_hub_threshold must be in (0, 1)")
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
