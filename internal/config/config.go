package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	JWT        JWTConfig
	RateLimit  RateLimitConfig
	Gemini     GeminiConfig
	R2         R2Config
	Zitadel    ZitadelConfig
	Transcribe TranscribeConfig
	Gateway    GatewayConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	TranscribePerHour int
	MinutesPerHour    int
	StatusPerMin      int
}

type GeminiConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	PollIntervalSecs  int // interval between remote-file state polls
	ActivationTimeout int // seconds; ceiling on the remote-file "ready" wait
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type ZitadelConfig struct {
	Domain   string
	ClientID string
	Issuer   string
}

type TranscribeConfig struct {
	UploadDir      string
	SegmentSeconds int
	MaxUploadMB    int
	FFmpegPath     string
	Concurrency    int
}

type GatewayConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("GEMINI_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("ZITADEL_CLIENT_ID")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("ratelimit.transcribe_per_hour", "RATELIMIT_TRANSCRIBE_PER_HOUR")
	_ = viper.BindEnv("ratelimit.minutes_per_hour", "RATELIMIT_MINUTES_PER_HOUR")
	_ = viper.BindEnv("ratelimit.status_per_min", "RATELIMIT_STATUS_PER_MIN")
	_ = viper.BindEnv("gemini.api_key", "GEMINI_API_KEY")
	_ = viper.BindEnv("gemini.base_url", "GEMINI_BASE_URL")
	_ = viper.BindEnv("gemini.model", "GEMINI_MODEL")
	_ = viper.BindEnv("gemini.poll_interval", "GEMINI_POLL_INTERVAL")
	_ = viper.BindEnv("gemini.activation_timeout", "GEMINI_ACTIVATION_TIMEOUT")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("zitadel.domain", "ZITADEL_DOMAIN")
	_ = viper.BindEnv("zitadel.client_id", "ZITADEL_CLIENT_ID")
	_ = viper.BindEnv("zitadel.issuer", "ZITADEL_ISSUER")
	_ = viper.BindEnv("transcribe.upload_dir", "UPLOAD_DIR")
	_ = viper.BindEnv("transcribe.segment_seconds", "SEGMENT_SECONDS")
	_ = viper.BindEnv("transcribe.max_upload_mb", "MAX_UPLOAD_MB")
	_ = viper.BindEnv("transcribe.ffmpeg_path", "FFMPEG_PATH")
	_ = viper.BindEnv("transcribe.concurrency", "WORKER_CONCURRENCY")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.transcribe_per_hour", 10)
	viper.SetDefault("ratelimit.minutes_per_hour", 20)
	viper.SetDefault("ratelimit.status_per_min", 240)

	// Gemini defaults
	viper.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com")
	viper.SetDefault("gemini.model", "gemini-2.5-pro")
	viper.SetDefault("gemini.poll_interval", 5)
	viper.SetDefault("gemini.activation_timeout", 600)

	// Transcription defaults
	viper.SetDefault("transcribe.upload_dir", "./uploads")
	viper.SetDefault("transcribe.segment_seconds", 600)
	viper.SetDefault("transcribe.max_upload_mb", 200)
	viper.SetDefault("transcribe.ffmpeg_path", "ffmpeg")
	viper.SetDefault("transcribe.concurrency", 10)

	// Gateway defaults
	viper.SetDefault("gateway.enabled", false)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			ApiDomain: viper.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			TranscribePerHour: viper.GetInt("ratelimit.transcribe_per_hour"),
			MinutesPerHour:    viper.GetInt("ratelimit.minutes_per_hour"),
			StatusPerMin:      viper.GetInt("ratelimit.status_per_min"),
		},
		Gemini: GeminiConfig{
			APIKey:            viper.GetString("gemini.api_key"),
			BaseURL:           viper.GetString("gemini.base_url"),
			Model:             viper.GetString("gemini.model"),
			PollIntervalSecs:  viper.GetInt("gemini.poll_interval"),
			ActivationTimeout: viper.GetInt("gemini.activation_timeout"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
		Zitadel: ZitadelConfig{
			Domain:   viper.GetString("zitadel.domain"),
			ClientID: viper.GetString("zitadel.client_id"),
			Issuer:   viper.GetString("zitadel.issuer"),
		},
		Transcribe: TranscribeConfig{
			UploadDir:      viper.GetString("transcribe.upload_dir"),
			SegmentSeconds: viper.GetInt("transcribe.segment_seconds"),
			MaxUploadMB:    viper.GetInt("transcribe.max_upload_mb"),
			FFmpegPath:     viper.GetString("transcribe.ffmpeg_path"),
			Concurrency:    viper.GetInt("transcribe.concurrency"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
	}

	return cfg, nil
}
