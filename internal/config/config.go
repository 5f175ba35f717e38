// Package config loads service configuration from config files, .env files
// and APPOINTMENTS_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "APPOINTMENTS"

// Config is the complete service configuration.
type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Policy   PolicyConfig   `mapstructure:"policy"`
	Assets   AssetsConfig   `mapstructure:"assets"`
	Redis    RedisConfig    `mapstructure:"redis"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Calendar CalendarConfig `mapstructure:"calendar"`
	Log      LogConfig      `mapstructure:"log"`
}

// HTTPConfig configures the listener.
type HTTPConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// StorageConfig selects the record store.
type StorageConfig struct {
	Driver    string `mapstructure:"driver"`
	SQLiteDSN string `mapstructure:"sqlite_dsn"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	JWTSecret    string   `mapstructure:"jwt_secret"`
	AdminUserIDs []string `mapstructure:"admin_user_ids"`
}

// PolicyConfig carries booking policy knobs.
type PolicyConfig struct {
	MaxActiveRequests int           `mapstructure:"max_active_requests"`
	SlotInterval      time.Duration `mapstructure:"slot_interval"`
	SlotOpen          string        `mapstructure:"slot_open"`
	SlotClose         string        `mapstructure:"slot_close"`
	RuleCacheTTL      time.Duration `mapstructure:"rule_cache_ttl"`
}

// AssetsConfig selects where reference images are stored.
type AssetsConfig struct {
	Driver        string   `mapstructure:"driver"`
	LocalDir      string   `mapstructure:"local_dir"`
	PublicBaseURL string   `mapstructure:"public_base_url"`
	MaxImageBytes int64    `mapstructure:"max_image_bytes"`
	S3            S3Config `mapstructure:"s3"`
}

// S3Config configures an S3 or S3-compatible bucket.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

// RedisConfig enables distributed approval locks when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

// SMTPConfig enables decision emails when Host is set.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// CalendarConfig controls the iCalendar export.
type CalendarConfig struct {
	Name     string `mapstructure:"name"`
	Timezone string `mapstructure:"timezone"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Location returns the calendar time zone.
func (c CalendarConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.allowed_origins", []string{})

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite_dsn", "file:appointments.db")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.admin_user_ids", []string{})

	v.SetDefault("policy.max_active_requests", 3)
	v.SetDefault("policy.slot_interval", "30m")
	v.SetDefault("policy.slot_open", "08:00")
	v.SetDefault("policy.slot_close", "21:00")
	v.SetDefault("policy.rule_cache_ttl", "15s")

	v.SetDefault("assets.driver", "local")
	v.SetDefault("assets.local_dir", "./uploads")
	v.SetDefault("assets.public_base_url", "/uploads")
	v.SetDefault("assets.max_image_bytes", 10<<20)
	v.SetDefault("assets.s3.bucket", "")
	v.SetDefault("assets.s3.region", "ap-northeast-1")
	v.SetDefault("assets.s3.endpoint", "")
	v.SetDefault("assets.s3.access_key_id", "")
	v.SetDefault("assets.s3.secret_access_key", "")
	v.SetDefault("assets.s3.use_path_style", false)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", "10s")

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")

	v.SetDefault("calendar.name", "予約")
	v.SetDefault("calendar.timezone", "Asia/Tokyo")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads configuration with the precedence environment > config file > defaults.
// path names an explicit config file; when empty, config.yaml is looked up in
// ./config and the working directory and may be absent. .env files are loaded
// into the environment first when present.
func Load(path string, envFiles ...string) (Config, error) {
	if err := loadDotenv(envFiles...); err != nil {
		return Config{}, err
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("設定ファイルを読み込めません: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("設定を解析できません: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadDotenv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf(".env ファイルを読み込めません: %w", err)
		}
	}
	return nil
}

func (c *Config) normalize() {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	c.Assets.Driver = strings.ToLower(strings.TrimSpace(c.Assets.Driver))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.Auth.AdminUserIDs = compact(c.Auth.AdminUserIDs)
	c.HTTP.AllowedOrigins = compact(c.HTTP.AllowedOrigins)
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			out = append(out, value)
		}
	}
	return out
}

// Validate reports every invalid key in a single error.
func (c Config) Validate() error {
	var invalid []string
	check := func(ok bool, key string) {
		if !ok {
			invalid = append(invalid, key)
		}
	}

	check(c.HTTP.Port > 0 && c.HTTP.Port <= 65535, "http.port")
	check(c.Storage.Driver == "sqlite" || c.Storage.Driver == "memory", "storage.driver")
	check(c.Storage.Driver != "sqlite" || strings.TrimSpace(c.Storage.SQLiteDSN) != "", "storage.sqlite_dsn")
	check(len(c.Auth.JWTSecret) >= 16, "auth.jwt_secret")
	check(c.Policy.MaxActiveRequests > 0, "policy.max_active_requests")
	check(c.Policy.SlotInterval >= time.Minute && c.Policy.SlotInterval%time.Minute == 0, "policy.slot_interval")
	check(isClock(c.Policy.SlotOpen), "policy.slot_open")
	check(isClock(c.Policy.SlotClose) && c.Policy.SlotClose > c.Policy.SlotOpen, "policy.slot_close")
	check(c.Policy.RuleCacheTTL >= 0, "policy.rule_cache_ttl")
	check(c.Assets.Driver == "local" || c.Assets.Driver == "s3", "assets.driver")
	check(c.Assets.Driver != "local" || c.Assets.LocalDir != "", "assets.local_dir")
	check(c.Assets.Driver != "s3" || c.Assets.S3.Bucket != "", "assets.s3.bucket")
	check(c.Assets.MaxImageBytes > 0, "assets.max_image_bytes")
	check(c.Redis.Addr == "" || c.Redis.LockTTL > 0, "redis.lock_ttl")
	check(c.SMTP.Host == "" || (c.SMTP.Port > 0 && (c.SMTP.From != "" || c.SMTP.Username != "")), "smtp.from")
	_, tzErr := c.Calendar.Location()
	check(tzErr == nil, "calendar.timezone")
	check(c.Log.Level == "debug" || c.Log.Level == "info" || c.Log.Level == "warn" || c.Log.Level == "error", "log.level")
	check(c.Log.Format == "json" || c.Log.Format == "text", "log.format")

	if len(invalid) > 0 {
		return fmt.Errorf("設定値が不正です: %s", strings.Join(invalid, ", "))
	}
	return nil
}

// isClock reports whether value is a zero-padded HH:MM time of day.
func isClock(value string) bool {
	if len(value) != 5 || value[2] != ':' {
		return false
	}
	t, err := time.Parse("15:04", value)
	return err == nil && t.Format("15:04") == value
}
