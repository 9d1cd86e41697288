// Package config reads server settings from the environment. A .env file in
// the working directory is loaded first when present.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Config struct {
	// StorageType selects the store: memory, filesystem, sqlite, mysql,
	// postgres or s3.
	StorageType      string
	LocalStoragePath string
	DataSourceName   string
	S3Bucket         string
	S3Endpoint       string

	// RedisAddr enables the Redis save guard when set.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SaveLockTTL   time.Duration

	ImageFetchTimeout time.Duration
	MaxImageBytes     int64
	MaxImagePixels    int64
	SessionIdleTTL    time.Duration

	// AllowPrivateImageHosts lets templates reference images on loopback and
	// private networks.
	AllowPrivateImageHosts bool
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	v.SetDefault("storage_type", "memory")
	v.SetDefault("local_storage_path", "./data")
	v.SetDefault("data_source_name", "")
	v.SetDefault("s3_bucket_name", "")
	v.SetDefault("s3_endpoint", "")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("save_lock_ttl", 30*time.Second)
	v.SetDefault("image_fetch_timeout", 15*time.Second)
	v.SetDefault("max_image_bytes", int64(10<<20))
	v.SetDefault("max_image_pixels", int64(40_000_000))
	v.SetDefault("allow_private_image_hosts", false)
	v.SetDefault("session_idle_ttl", 2*time.Hour)
	v.AutomaticEnv()
	return v
}

// Load reads dotEnvPath if it exists, then the environment.
func Load(dotEnvPath string) (*Config, error) {
	if dotEnvPath != "" {
		if _, err := os.Stat(dotEnvPath); err == nil {
			if err := godotenv.Load(dotEnvPath); err != nil {
				return nil, errors.Wrapf(err, "load %s", dotEnvPath)
			}
		} else if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "stat %s", dotEnvPath)
		}
	}

	v := newViper()
	cfg := &Config{
		StorageType:       v.GetString("storage_type"),
		LocalStoragePath:  v.GetString("local_storage_path"),
		DataSourceName:    v.GetString("data_source_name"),
		S3Bucket:          v.GetString("s3_bucket_name"),
		S3Endpoint:        v.GetString("s3_endpoint"),
		RedisAddr:         v.GetString("redis_addr"),
		RedisPassword:     v.GetString("redis_password"),
		RedisDB:           v.GetInt("redis_db"),
		SaveLockTTL:       v.GetDuration("save_lock_ttl"),
		ImageFetchTimeout: v.GetDuration("image_fetch_timeout"),
		MaxImageBytes:     v.GetInt64("max_image_bytes"),
		MaxImagePixels:    v.GetInt64("max_image_pixels"),
		SessionIdleTTL:    v.GetDuration("session_idle_ttl"),

		AllowPrivateImageHosts: v.GetBool("allow_private_image_hosts"),
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	switch c.StorageType {
	case "", "memory", "filesystem":
	case "sqlite", "mysql", "postgres":
		if c.DataSourceName == "" {
			return errors.Errorf("DATA_SOURCE_NAME is required for %s storage", c.StorageType)
		}
	case "s3":
		if c.S3Bucket == "" {
			return errors.New("S3_BUCKET_NAME is required for s3 storage")
		}
	default:
		return errors.Errorf("unknown STORAGE_TYPE %q", c.StorageType)
	}
	if c.MaxImageBytes <= 0 {
		return errors.New("MAX_IMAGE_BYTES must be positive")
	}
	if c.MaxImagePixels <= 0 {
		return errors.New("MAX_IMAGE_PIXELS must be positive")
	}
	return nil
}
