package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/plantops/sensor-pipeline/pkg/types"
)

// Config is the complete server configuration.
//
// Configuration is loaded from (in order of precedence):
// 1. Command-line flags
// 2. Environment variables
// 3. Config file (YAML)
// 4. Defaults
//
// Example config file:
//
//	server:
//	  listen: :8080
//
//	hot_store:
//	  host: timescale.internal
//	  port: 5432
//	  database: telemetry
//	  user: ingest
//
//	warm_store:
//	  host: postgres.internal
//	  database: operations
//
//	stream:
//	  brokers: [kafka-0:9092, kafka-1:9092]
//	  priority_topic: manufacturing-alerts-priority
//
//	tenancy:
//	  platform_domain: sensors.plantops.io
//	  directory_url: https://tenants.plantops.io
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Region      string            `yaml:"region"`
	Environment string            `yaml:"environment"`
	HotStore    StoreConfig       `yaml:"hot_store"`
	WarmStore   StoreConfig       `yaml:"warm_store"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
	Stream      StreamConfig      `yaml:"stream"`
	Redis       RedisConfig       `yaml:"redis"`
	Tenancy     TenancyConfig     `yaml:"tenancy"`
	Alerting    AlertingConfig    `yaml:"alerting"`
	Thresholds  types.Thresholds  `yaml:"thresholds"`
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	Listen          string        `yaml:"listen"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig defines how to reach one relational tier. ConnectionString,
// when set, takes precedence over the discrete parts.
type StoreConfig struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	Database         string `yaml:"database"`
	User             string `yaml:"user"`
	Password         string `yaml:"password"`
	ConnectionString string `yaml:"connection_string,omitempty"`
	PoolSize         int    `yaml:"pool_size,omitempty"`
}

// DSN returns the pgx connection string for this tier.
func (s StoreConfig) DSN() string {
	if s.ConnectionString != "" {
		return s.ConnectionString
	}
	host := s.Host
	if s.Port != 0 {
		host = fmt.Sprintf("%s:%d", s.Host, s.Port)
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   host,
		Path:   "/" + s.Database,
	}
	if s.User != "" {
		if s.Password != "" {
			u.User = url.UserPassword(s.User, s.Password)
		} else {
			u.User = url.User(s.User)
		}
	}
	return u.String()
}

// ObjectStoreConfig defines the cold (archival) tier.
type ObjectStoreConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Secure    bool   `yaml:"secure"`
}

// StreamConfig defines the event stream connection and topic layout.
type StreamConfig struct {
	Brokers       []string `yaml:"brokers"`
	PriorityTopic string   `yaml:"priority_topic"`
	SharedTopic   string   `yaml:"shared_topic"`
}

// RedisConfig defines the cache connection.
type RedisConfig struct {
	URL       string `yaml:"url"`
	KeyPrefix string `yaml:"key_prefix,omitempty"`
}

// TenancyConfig defines tenant resolution sources.
type TenancyConfig struct {
	// PlatformDomain is the registrable domain used for subdomain-based
	// tenant extraction, e.g. "sensors.plantops.io".
	PlatformDomain string `yaml:"platform_domain"`

	// DirectoryURL and DirectoryToken configure the tenant directory
	// service. When DirectoryURL is empty, StaticFile must point at a
	// YAML tenant inventory instead.
	DirectoryURL   string `yaml:"directory_url,omitempty"`
	DirectoryToken string `yaml:"directory_token,omitempty"`
	StaticFile     string `yaml:"static_file,omitempty"`
}

// AlertingConfig defines alert dispatch destinations.
type AlertingConfig struct {
	// DashboardURL is the template for per-equipment dashboard links in
	// notifications. {equipment_id} is replaced per alert.
	DashboardURL string `yaml:"dashboard_url,omitempty"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Region:      "us-east-1",
		Environment: "development",
		HotStore: StoreConfig{
			Port:     5432,
			Database: "telemetry",
			User:     "telemetry",
			PoolSize: SharedHotPoolSize,
		},
		WarmStore: StoreConfig{
			Port:     5432,
			Database: "operations",
			User:     "operations",
			PoolSize: SharedWarmPoolSize,
		},
		Stream: StreamConfig{
			Brokers:       []string{"localhost:9092"},
			PriorityTopic: "manufacturing-alerts-priority",
			SharedTopic:   "manufacturing-shared",
		},
		Redis: RedisConfig{
			URL: "redis://localhost:6379/0",
		},
		Thresholds: types.DefaultThresholds(),
	}
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if c.HotStore.Host == "" && c.HotStore.ConnectionString == "" {
		return fmt.Errorf("hot_store.host or hot_store.connection_string is required")
	}
	if c.WarmStore.Host == "" && c.WarmStore.ConnectionString == "" {
		return fmt.Errorf("warm_store.host or warm_store.connection_string is required")
	}
	if len(c.Stream.Brokers) == 0 {
		return fmt.Errorf("stream.brokers is required")
	}
	if c.Tenancy.DirectoryURL == "" && c.Tenancy.StaticFile == "" {
		return fmt.Errorf("tenancy.directory_url or tenancy.static_file is required")
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides:
//   - REGION, ENVIRONMENT
//   - HOT_STORE_HOST, HOT_STORE_PORT, HOT_STORE_DB, HOT_STORE_USER, HOT_STORE_PASSWORD
//   - WARM_STORE_HOST, WARM_STORE_PORT, WARM_STORE_DB, WARM_STORE_USER, WARM_STORE_PASSWORD
//   - SHARED_CONNECTION_STRING (full DSN, wins over the discrete HOT_STORE_* parts)
//   - SHARED_OBJECT_BUCKET, OBJECT_STORE_ENDPOINT, OBJECT_STORE_ACCESS_KEY, OBJECT_STORE_SECRET_KEY
//   - STREAM_BROKERS (comma-separated), PRIORITY_ALERT_TOPIC_IDENTIFIER
//   - REDIS_URL
//   - PLATFORM_DOMAIN, TENANT_DIRECTORY_URL, TENANT_DIRECTORY_TOKEN, TENANT_FILE
//   - DASHBOARD_URL
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("REGION"); v != "" {
		c.Region = v
	}
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		c.Environment = v
	}

	applyStoreEnv(&c.HotStore, "HOT_STORE")
	applyStoreEnv(&c.WarmStore, "WARM_STORE")
	if v := os.Getenv("SHARED_CONNECTION_STRING"); v != "" {
		c.HotStore.ConnectionString = v
	}

	if v := os.Getenv("SHARED_OBJECT_BUCKET"); v != "" {
		c.ObjectStore.Bucket = v
	}
	if v := os.Getenv("OBJECT_STORE_ENDPOINT"); v != "" {
		c.ObjectStore.Endpoint = v
	}
	if v := os.Getenv("OBJECT_STORE_ACCESS_KEY"); v != "" {
		c.ObjectStore.AccessKey = v
	}
	if v := os.Getenv("OBJECT_STORE_SECRET_KEY"); v != "" {
		c.ObjectStore.SecretKey = v
	}

	if v := os.Getenv("STREAM_BROKERS"); v != "" {
		var brokers []string
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		if len(brokers) > 0 {
			c.Stream.Brokers = brokers
		}
	}
	if v := os.Getenv("PRIORITY_ALERT_TOPIC_IDENTIFIER"); v != "" {
		c.Stream.PriorityTopic = v
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}

	if v := os.Getenv("PLATFORM_DOMAIN"); v != "" {
		c.Tenancy.PlatformDomain = v
	}
	if v := os.Getenv("TENANT_DIRECTORY_URL"); v != "" {
		c.Tenancy.DirectoryURL = v
	}
	if v := os.Getenv("TENANT_DIRECTORY_TOKEN"); v != "" {
		c.Tenancy.DirectoryToken = v
	}
	if v := os.Getenv("TENANT_FILE"); v != "" {
		c.Tenancy.StaticFile = v
	}

	if v := os.Getenv("DASHBOARD_URL"); v != "" {
		c.Alerting.DashboardURL = v
	}
}

// Production reports whether the server runs with production hardening
// (TLS to brokers, strict tenant auth).
func (c *Config) Production() bool {
	return c.Environment == "production"
}

func applyStoreEnv(s *StoreConfig, prefix string) {
	if v := os.Getenv(prefix + "_HOST"); v != "" {
		s.Host = v
	}
	if v := os.Getenv(prefix + "_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			s.Port = port
		}
	}
	if v := os.Getenv(prefix + "_DB"); v != "" {
		s.Database = v
	}
	if v := os.Getenv(prefix + "_USER"); v != "" {
		s.User = v
	}
	if v := os.Getenv(prefix + "_PASSWORD"); v != "" {
		s.Password = v
	}
}
