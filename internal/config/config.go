package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "photomap.cfg.json"

// StorageConfig selects and configures the document store backend.
type StorageConfig struct {
	Type       string         `json:"type" mapstructure:"type"`
	Collection string         `json:"collection" mapstructure:"collection"`
	SQLite     SQLiteConfig   `json:"sqlite" mapstructure:"sqlite"`
	Postgres   PostgresConfig `json:"postgres" mapstructure:"postgres"`
	NATS       NATSConfig     `json:"nats" mapstructure:"nats"`
}

// SQLiteConfig holds embedded SQL store settings
type SQLiteConfig struct {
	Path         string        `json:"path" mapstructure:"path"`
	PollInterval time.Duration `json:"pollInterval" mapstructure:"pollInterval"`
}

// PostgresConfig holds server SQL store settings
type PostgresConfig struct {
	Host         string        `json:"host" mapstructure:"host"`
	Port         string        `json:"port" mapstructure:"port"`
	Username     string        `json:"username" mapstructure:"username"`
	Password     string        `json:"password" mapstructure:"password"`
	Database     string        `json:"database" mapstructure:"database"`
	SSLMode      string        `json:"sslmode" mapstructure:"sslmode"`
	PollInterval time.Duration `json:"pollInterval" mapstructure:"pollInterval"`
}

// NATSConfig holds JetStream KV store settings
type NATSConfig struct {
	URL          string `json:"url" mapstructure:"url"`
	Embedded     bool   `json:"embedded" mapstructure:"embedded"`
	BucketPrefix string `json:"bucketPrefix" mapstructure:"bucketPrefix"`
	StoreDir     string `json:"storeDir" mapstructure:"storeDir"`
}

// LocationConfig tunes one-shot fix requests.
type LocationConfig struct {
	HighAccuracy bool          `json:"highAccuracy" mapstructure:"highAccuracy"`
	Timeout      time.Duration `json:"timeout" mapstructure:"timeout"`
	MaximumAge   time.Duration `json:"maximumAge" mapstructure:"maximumAge"`
}

// IdentityConfig controls how uploads are attributed.
type IdentityConfig struct {
	Default        string `json:"default" mapstructure:"default"`
	AllowAnonymous bool   `json:"allowAnonymous" mapstructure:"allowAnonymous"`
}

// BlobConfig selects the gallery blob driver.
type BlobConfig struct {
	Driver string       `json:"driver" mapstructure:"driver"`
	FSRoot string       `json:"fsRoot" mapstructure:"fsRoot"`
	S3     S3BlobConfig `json:"s3" mapstructure:"s3"`
}

// S3BlobConfig holds S3 compatible gallery settings
type S3BlobConfig struct {
	Bucket    string `json:"bucket" mapstructure:"bucket"`
	Region    string `json:"region" mapstructure:"region"`
	Endpoint  string `json:"endpoint" mapstructure:"endpoint"`
	PathStyle bool   `json:"pathStyle" mapstructure:"pathStyle"`
	// Static credentials; the default AWS chain is used when empty.
	AccessKeyID     string `json:"accessKeyId" mapstructure:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey" mapstructure:"secretAccessKey"`
}

// DeviceConfig holds the headless device provider settings.
type DeviceConfig struct {
	Platform string `json:"platform" mapstructure:"platform"`
	DropDir  string `json:"dropDir" mapstructure:"dropDir"`
	// Location is a fixed "lat,lng" fix reported by the headless provider.
	Location string `json:"location" mapstructure:"location"`
}

// ServerConfig holds map feed HTTP server settings
type ServerConfig struct {
	Address string `json:"address" mapstructure:"address"`
	URL     string `json:"url" mapstructure:"url"`
	Secret  string `json:"secret" mapstructure:"secret"`
}

// OTelConfig holds OpenTelemetry configuration
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// InfluxConfig holds upload telemetry sink settings
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// GraylogConfig holds the GELF log sink settings
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./photomap-logs")

	viper.SetDefault("identity.default", "")
	viper.SetDefault("identity.allowAnonymous", true)

	viper.SetDefault("location.highAccuracy", true)
	viper.SetDefault("location.timeout", 15*time.Second)
	viper.SetDefault("location.maximumAge", 10*time.Second)

	viper.SetDefault("device.platform", "android")
	viper.SetDefault("device.dropDir", "./camera")
	viper.SetDefault("device.location", "")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.collection", "photos")
	viper.SetDefault("storage.sqlite.path", "./photomap.db")
	viper.SetDefault("storage.sqlite.pollInterval", 2*time.Second)
	viper.SetDefault("storage.postgres.host", "localhost")
	viper.SetDefault("storage.postgres.port", "5432")
	viper.SetDefault("storage.postgres.username", "postgres")
	viper.SetDefault("storage.postgres.password", "postgres")
	viper.SetDefault("storage.postgres.database", "photomap")
	viper.SetDefault("storage.postgres.sslmode", "disable")
	viper.SetDefault("storage.postgres.pollInterval", 2*time.Second)
	viper.SetDefault("storage.nats.url", "nats://127.0.0.1:4222")
	viper.SetDefault("storage.nats.embedded", false)
	viper.SetDefault("storage.nats.bucketPrefix", "PHOTOMAP")
	viper.SetDefault("storage.nats.storeDir", "")

	viper.SetDefault("blob.driver", "fs")
	viper.SetDefault("blob.fsRoot", "./gallery")
	viper.SetDefault("blob.s3.bucket", "")
	viper.SetDefault("blob.s3.region", "us-east-1")
	viper.SetDefault("blob.s3.endpoint", "")
	viper.SetDefault("blob.s3.pathStyle", false)
	viper.SetDefault("blob.s3.accessKeyId", "")
	viper.SetDefault("blob.s3.secretAccessKey", "")

	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("server.url", "http://localhost:8080")
	viper.SetDefault("server.secret", "")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "photomap")
	viper.SetDefault("otel.batchTimeout", 5*time.Second)
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", false)

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "photomap")
	viper.SetDefault("influx.bucket", "uploads")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file. Defaults and
// PHOTOMAP_ environment overrides stay in effect when the file is missing.
func Load(configDir string) error {
	setDefaults()

	viper.SetEnvPrefix("PHOTOMAP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetStorageConfig returns the storage backend configuration.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type:       viper.GetString("storage.type"),
		Collection: viper.GetString("storage.collection"),
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			PollInterval: viper.GetDuration("storage.sqlite.pollInterval"),
		},
		Postgres: PostgresConfig{
			Host:         viper.GetString("storage.postgres.host"),
			Port:         viper.GetString("storage.postgres.port"),
			Username:     viper.GetString("storage.postgres.username"),
			Password:     viper.GetString("storage.postgres.password"),
			Database:     viper.GetString("storage.postgres.database"),
			SSLMode:      viper.GetString("storage.postgres.sslmode"),
			PollInterval: viper.GetDuration("storage.postgres.pollInterval"),
		},
		NATS: NATSConfig{
			URL:          viper.GetString("storage.nats.url"),
			Embedded:     viper.GetBool("storage.nats.embedded"),
			BucketPrefix: viper.GetString("storage.nats.bucketPrefix"),
			StoreDir:     viper.GetString("storage.nats.storeDir"),
		},
	}
}

// GetLocationConfig returns the fix request options.
func GetLocationConfig() LocationConfig {
	return LocationConfig{
		HighAccuracy: viper.GetBool("location.highAccuracy"),
		Timeout:      viper.GetDuration("location.timeout"),
		MaximumAge:   viper.GetDuration("location.maximumAge"),
	}
}

// GetIdentityConfig returns the upload attribution policy.
func GetIdentityConfig() IdentityConfig {
	return IdentityConfig{
		Default:        viper.GetString("identity.default"),
		AllowAnonymous: viper.GetBool("identity.allowAnonymous"),
	}
}

// GetBlobConfig returns the gallery blob configuration.
func GetBlobConfig() BlobConfig {
	return BlobConfig{
		Driver: viper.GetString("blob.driver"),
		FSRoot: viper.GetString("blob.fsRoot"),
		S3: S3BlobConfig{
			Bucket:    viper.GetString("blob.s3.bucket"),
			Region:    viper.GetString("blob.s3.region"),
			Endpoint:  viper.GetString("blob.s3.endpoint"),
			PathStyle: viper.GetBool("blob.s3.pathStyle"),

			AccessKeyID:     viper.GetString("blob.s3.accessKeyId"),
			SecretAccessKey: viper.GetString("blob.s3.secretAccessKey"),
		},
	}
}

// GetDeviceConfig returns the headless device configuration.
func GetDeviceConfig() DeviceConfig {
	return DeviceConfig{
		Platform: viper.GetString("device.platform"),
		DropDir:  viper.GetString("device.dropDir"),
		Location: viper.GetString("device.location"),
	}
}

// GetServerConfig returns the map feed server configuration.
func GetServerConfig() ServerConfig {
	return ServerConfig{
		Address: viper.GetString("server.address"),
		URL:     viper.GetString("server.url"),
		Secret:  viper.GetString("server.secret"),
	}
}

// GetOTelConfig returns the OpenTelemetry configuration.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the telemetry sink configuration.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetGraylogConfig returns the GELF sink configuration.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}
