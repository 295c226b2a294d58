// Ininicializing common application configuration
package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Replicate  ReplicateConfig  `mapstructure:"replicate"`
	Generation GenerationConfig `mapstructure:"generation"`
}

type ServerConfig struct {
	AppVersion   string        `mapstructure:"app_version"`
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Idle_timeout time.Duration `mapstructure:"idle_timeout"`
	Env          string        `mapstructure:"environment"`
	Mode         string        `mapstructure:"mode"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`

	// Настройки пула соединений
	MaxRetries   int           `mapstructure:"max_retries"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	OptimizeTopic string   `mapstructure:"optimize_topic"`
	EventsTopic   string   `mapstructure:"events_topic"`
	GroupID       string   `mapstructure:"group_id"`
	Workers       int      `mapstructure:"workers"`
}

type StorageConfig struct {
	BasePath      string        `mapstructure:"base_path"`
	PublicBaseURL string        `mapstructure:"public_base_url"`
	InputTTL      time.Duration `mapstructure:"input_ttl"`
	GeneratedTTL  time.Duration `mapstructure:"generated_ttl"`
	PurgeInterval time.Duration `mapstructure:"purge_interval"`
}

type ReplicateConfig struct {
	APIToken      string            `mapstructure:"api_token"`
	BaseURL       string            `mapstructure:"base_url"`
	DefaultModel  string            `mapstructure:"default_model"`
	UploadMode    string            `mapstructure:"upload_mode"`
	PollInterval  time.Duration     `mapstructure:"poll_interval"`
	PollTimeout   time.Duration     `mapstructure:"poll_timeout"`
	ModelVersions map[string]string `mapstructure:"model_versions"`
}

type GenerationConfig struct {
	MaxInputBytes    int64 `mapstructure:"max_input_bytes"`
	MaxOptimizeBytes int64 `mapstructure:"max_optimize_bytes"`
	MaxDownloadBytes int64 `mapstructure:"max_download_bytes"`
}

func LoadConfig() (*viper.Viper, error) {

	viperInstance := viper.New()

	viperInstance.AddConfigPath("./config")
	viperInstance.SetConfigName("config")
	viperInstance.SetConfigType("yaml")

	viperInstance.SetEnvPrefix("VPB")
	viperInstance.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viperInstance.AutomaticEnv()
	setDefaults(viperInstance)

	err := viperInstance.ReadInConfig()

	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}
	return viperInstance, nil
}

func ParseConfig(v *viper.Viper) (*Config, error) {

	var c Config

	err := v.Unmarshal(&c)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

const (
	generationAttempts = 3
	attemptHeadroom    = 30 * time.Second
	oomBackoffTotal    = 6 * time.Second
)

// RequestTimeout is server.timeout raised to fit a generation that spends its
// whole out-of-memory retry budget: every attempt polls up to poll_timeout
// plus time for upload, create and download.
func (c *Config) RequestTimeout() time.Duration {
	budget := generationAttempts*(c.Replicate.PollTimeout+attemptHeadroom) + oomBackoffTotal
	return max(c.Server.Timeout, budget)
}

// setDefaults устанавливает значения по умолчанию
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.app_version", "1.0.0")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.timeout", 300*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.mode", "debug")

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_ttl", 24*time.Hour)
	v.SetDefault("redis.max_retries", 2)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", 2*time.Second)
	v.SetDefault("redis.read_timeout", time.Second)
	v.SetDefault("redis.write_timeout", time.Second)

	v.SetDefault("kafka.brokers", []string{"localhost:9094"})
	v.SetDefault("kafka.optimize_topic", "image-optimization")
	v.SetDefault("kafka.events_topic", "generation-events")
	v.SetDefault("kafka.group_id", "image-optimizer-service")
	v.SetDefault("kafka.workers", 2)

	v.SetDefault("storage.base_path", "./storage")
	v.SetDefault("storage.public_base_url", "http://localhost:8080")
	v.SetDefault("storage.input_ttl", time.Hour)
	v.SetDefault("storage.generated_ttl", 24*time.Hour)
	v.SetDefault("storage.purge_interval", 10*time.Minute)

	v.SetDefault("replicate.api_token", "")
	v.SetDefault("replicate.base_url", "https://api.replicate.com/v1")
	v.SetDefault("replicate.default_model", "flux-variations")
	v.SetDefault("replicate.upload_mode", "storage")
	v.SetDefault("replicate.poll_interval", time.Second)
	v.SetDefault("replicate.poll_timeout", 60*time.Second)

	v.SetDefault("generation.max_input_bytes", 5*1024*1024)
	v.SetDefault("generation.max_optimize_bytes", 25*1024*1024)
	v.SetDefault("generation.max_download_bytes", 10*1024*1024)
}

func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
