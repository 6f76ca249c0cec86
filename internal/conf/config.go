package conf

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Transfer TransferConfig
	Log      LogConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// BaseURL is used to build share links returned to clients
	BaseURL string `mapstructure:"base_url"`
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// StorageConfig selects the blob store backend. Driver is "minio" or "local".
type StorageConfig struct {
	Driver string      `mapstructure:"driver"`
	Local  LocalConfig `mapstructure:"local"`
	MinIO  MinIOConfig `mapstructure:"minio"`
}

type LocalConfig struct {
	// Root is the directory holding merged blobs
	Root string `mapstructure:"root"`
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// TransferConfig tunes the chunked transfer engine
type TransferConfig struct {
	// TempDir holds per-session chunk directories before merge
	TempDir string `mapstructure:"temp_dir"`
	// ChunkSize is the server-enforced chunk size in bytes
	ChunkSize int64 `mapstructure:"chunk_size"`
	// SessionTTL is how long a client has to finish a chunked upload
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	// SweepInterval is the period of the stale-session/expired-file sweep
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// SweepWorkers bounds concurrent cleanup tasks
	SweepWorkers int `mapstructure:"sweep_workers"`
}

type LogConfig struct {
	Level            string        `mapstructure:"level"`
	Format           string        `mapstructure:"format"`
	Output           string        `mapstructure:"output"`
	File             FileLogConfig `mapstructure:"file"`
	EnableCaller     bool          `mapstructure:"enablecaller"`
	EnableStacktrace bool          `mapstructure:"enablestacktrace"`
}

type FileLogConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"maxsize"`
	MaxAge     int    `mapstructure:"maxage"`
	MaxBackups int    `mapstructure:"maxbackups"`
	Compress   bool   `mapstructure:"compress"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	JWTIssuer string `mapstructure:"jwt_issuer"`
}

func LoadConfig(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.setDefaults()

	return &config, nil
}

func (c *Config) setDefaults() {
	if c.Transfer.TempDir == "" {
		c.Transfer.TempDir = "uploads/temp"
	}
	if c.Transfer.ChunkSize <= 0 {
		c.Transfer.ChunkSize = 20 * 1024 * 1024 // 20 MiB
	}
	if c.Transfer.SessionTTL <= 0 {
		c.Transfer.SessionTTL = 24 * time.Hour
	}
	if c.Transfer.SweepInterval <= 0 {
		c.Transfer.SweepInterval = 10 * time.Minute
	}
	if c.Transfer.SweepWorkers <= 0 {
		c.Transfer.SweepWorkers = 4
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "local"
	}
	if c.Storage.Local.Root == "" {
		c.Storage.Local.Root = "uploads"
	}
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
