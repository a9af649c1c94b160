package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/ManuelReschke/mediabridge/internal/pkg/env"
	"github.com/ManuelReschke/mediabridge/internal/pkg/objectstore"
	"github.com/ManuelReschke/mediabridge/internal/pkg/variant"
)

// Storage backend names
const (
	BackendAWS      = "aws"
	BackendStorj    = "storj"
	BackendDatabase = "database"
	BackendMemory   = "memory"
)

type AppConf struct {
	Env             string `mapstructure:"env" validate:"oneof=dev test prod"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port" validate:"min=1,max=65535"`
	BodyLimitMB     int    `mapstructure:"body_limit_mb" validate:"min=1"`
	ShutdownSeconds int    `mapstructure:"shutdown_seconds"`
	OpenAPIFile     string `mapstructure:"openapi_file"`
	RateLimit       int    `mapstructure:"rate_limit"`
}

type MediaConf struct {
	Backend        string           `mapstructure:"backend" validate:"oneof=aws storj database memory"`
	KeyPrefix      string           `mapstructure:"key_prefix"`
	MaxImageWidth  int              `mapstructure:"max_image_width" validate:"min=0"`
	Presets        []variant.Preset `mapstructure:"presets"`
	WarmPresets    []string         `mapstructure:"warm_presets"`
	RegenerateJobs int              `mapstructure:"regenerate_concurrency" validate:"min=1"`
	PublicBaseURL  string           `mapstructure:"public_base_url"`
	FetchTimeout   int              `mapstructure:"fetch_timeout_sec" validate:"min=1"`
	FetchMaxMB     int              `mapstructure:"fetch_max_mb" validate:"min=1"`
}

type MetadataConf struct {
	Driver string `mapstructure:"driver" validate:"oneof=mongo mysql memory"`
}

type MongoConf struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type DatabaseConf struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

// DSN returns the go-sql-driver data source name
func (d DatabaseConf) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// MigrateURL returns the golang-migrate database URL
func (d DatabaseConf) MigrateURL() string {
	return fmt.Sprintf("mysql://%s:%s@tcp(%s:%d)/%s?multiStatements=true",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type RedisConf struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled reports whether a Redis server is configured
func (r RedisConf) Enabled() bool {
	return r.Host != ""
}

// Addr returns host:port
func (r RedisConf) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConf struct {
	Secret        string `mapstructure:"secret"`
	PublicKeyPath string `mapstructure:"public_key_path"`
	Issuer        string `mapstructure:"issuer"`
}

type KafkaConf struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Enabled reports whether lifecycle events are published
func (k KafkaConf) Enabled() bool {
	return len(k.Brokers) > 0 && k.Topic != ""
}

type QueueConf struct {
	Workers int `mapstructure:"workers" validate:"min=0"`
}

type Config struct {
	App      AppConf                   `mapstructure:"app"`
	Media    MediaConf                 `mapstructure:"media"`
	Metadata MetadataConf              `mapstructure:"metadata"`
	Mongo    MongoConf                 `mapstructure:"mongodb"`
	Database DatabaseConf              `mapstructure:"database"`
	AWS      objectstore.Config        `mapstructure:"aws"`
	Storj    objectstore.Config        `mapstructure:"storj"`
	Breaker  objectstore.BreakerConfig `mapstructure:"breaker"`
	Redis    RedisConf                 `mapstructure:"redis"`
	JWT      JWTConf                   `mapstructure:"jwt"`
	Kafka    KafkaConf                 `mapstructure:"kafka"`
	Queue    QueueConf                 `mapstructure:"queue"`

	// derived
	ShutdownTimeout time.Duration `mapstructure:"-"`
}

// IsDev reports whether the service runs in development mode
func (c *Config) IsDev() bool {
	return c.App.Env == "dev"
}

// NeedsSQL reports whether a MySQL connection is required
func (c *Config) NeedsSQL() bool {
	return c.Metadata.Driver == "mysql" || c.Media.Backend == BackendDatabase
}

// Load reads the configuration from the optional YAML file at path, the .env file and
// the process environment. Environment keys are the upper-cased config paths with
// dots replaced by underscores (MEDIA_BACKEND, AWS_BUCKET, ...).
func Load(path string) (*Config, error) {
	env.SetupEnvFile()

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// historic names
	_ = v.BindEnv("media.backend", "MEDIA_BACKEND", "MEDIA_STORAGE")
	_ = v.BindEnv("media.max_image_width", "MEDIA_MAX_IMAGE_WIDTH", "IMAGE_MAXWIDTH")
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKeys are settings without a default that may still come from the environment
var envKeys = []string{
	"aws.access_key_id", "aws.secret_access_key", "aws.bucket", "aws.endpoint", "aws.public_base_url", "aws.create_bucket", "aws.part_size_mb",
	"storj.access_key_id", "storj.secret_access_key", "storj.bucket", "storj.public_base_url", "storj.create_bucket", "storj.part_size_mb",
	"database.user", "database.password",
	"redis.host", "redis.password", "redis.db",
	"jwt.secret", "jwt.public_key_path", "jwt.issuer",
	"kafka.brokers", "kafka.topic",
	"media.public_base_url", "media.warm_presets",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "prod")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 4000)
	v.SetDefault("app.body_limit_mb", 50)
	v.SetDefault("app.shutdown_seconds", 15)
	v.SetDefault("app.openapi_file", "./docs/openapi.yml")
	v.SetDefault("app.rate_limit", 60)

	v.SetDefault("media.backend", BackendAWS)
	v.SetDefault("media.key_prefix", "media/")
	v.SetDefault("media.max_image_width", 2048)
	v.SetDefault("media.regenerate_concurrency", 4)
	v.SetDefault("media.fetch_timeout_sec", 20)
	v.SetDefault("media.fetch_max_mb", 25)

	v.SetDefault("metadata.driver", "mongo")
	v.SetDefault("mongodb.uri", "mongodb://localhost:27017")
	v.SetDefault("mongodb.database", "mediabridge")
	v.SetDefault("mongodb.collection", "media")

	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.name", "mediabridge")

	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("storj.region", "global")
	v.SetDefault("storj.endpoint", objectstore.StorjGateway)

	v.SetDefault("breaker.enabled", true)
	v.SetDefault("breaker.max_failures", 5)
	v.SetDefault("breaker.interval_sec", 60)
	v.SetDefault("breaker.timeout_sec", 30)

	v.SetDefault("redis.port", 6379)
	v.SetDefault("queue.workers", 2)
}

func (c *Config) normalize() error {
	c.Media.Backend = strings.ToLower(strings.TrimSpace(c.Media.Backend))
	c.Metadata.Driver = strings.ToLower(strings.TrimSpace(c.Metadata.Driver))
	if c.Media.KeyPrefix != "" && !strings.HasSuffix(c.Media.KeyPrefix, "/") {
		c.Media.KeyPrefix += "/"
	}
	if len(c.Media.Presets) == 0 {
		c.Media.Presets = variant.DefaultPresets()
	} else {
		c.Media.Presets = append(variant.DefaultPresets(), c.Media.Presets...)
	}
	if c.App.ShutdownSeconds == 0 {
		c.App.ShutdownSeconds = 15
	}
	c.ShutdownTimeout = time.Duration(c.App.ShutdownSeconds) * time.Second
	return nil
}

// Validate checks field constraints and the settings required by the selected backends
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch c.Media.Backend {
	case BackendAWS:
		if err := c.AWS.Validate(); err != nil {
			return fmt.Errorf("invalid aws config: %w", err)
		}
	case BackendStorj:
		if err := c.Storj.Validate(); err != nil {
			return fmt.Errorf("invalid storj config: %w", err)
		}
	}
	if c.Metadata.Driver == "mongo" && c.Mongo.URI == "" {
		return errors.New("invalid config: mongodb.uri is required for the mongo metadata driver")
	}
	if c.NeedsSQL() && c.Database.User == "" {
		return errors.New("invalid config: database.user is required")
	}
	return nil
}

// Presets compiles the configured preset table
func (c *Config) Presets() (*variant.Table, error) {
	return variant.NewTable(c.Media.Presets...)
}
