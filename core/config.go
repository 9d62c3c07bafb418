package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		LockTimeout   time.Duration
		MaxRetries    int
	}

	InvitationConfig struct {
		CodeLength       int // classroom codes; family codes use two groups of CodeLength-2
		MaxCodeRetries   int
		DefaultFamilyTTL time.Duration
	}

	RateLimitConfig struct {
		Enabled       bool
		RedisAddr     string
		RedisPassword string
		RedisDB       int
		RedeemRate    float64 // tokens per second, per user
		RedeemBurst   int
	}

	Config struct {
		Debug            bool
		TestMode         bool
		AppName          string
		Env              string
		Build            string
		SecretKey        string
		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		RollbarToken     string
		SendgridApiKey   string
		WorkDir          string

		Server      ServerConfig
		Database    DatabaseConfig
		Invitations InvitationConfig
		RateLimit   RateLimitConfig
	}
)

func (db DatabaseConfig) Address() string {
	return net.JoinHostPort(db.Host, strconv.Itoa(db.Port))
}

// NewConfig reads the app configuration from the environment.
// Variables are prefixed with the current ENV (DEV by default): DEV_SECRET_KEY, PROD_DATABASE_HOST, ...
func NewConfig() *Config {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", true)
	conf.SetDefault("app_name", "Jumuiya")
	conf.SetDefault("build", "develop")
	conf.SetDefault("secret_key", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	conf.SetDefault("frontend_base_url", "http://localhost:3000")
	conf.SetDefault("default_from_email", "Jumuiya <noreply@localhost>")

	conf.SetDefault("server_host", ":8000")
	conf.SetDefault("server_debug_host", ":4000")
	conf.SetDefault("server_shutdown_timeout", 5*time.Second)
	conf.SetDefault("jwt_expiration_delta", 7*24*time.Hour)
	conf.SetDefault("jwt_refresh_expiration_delta", 4*time.Hour)

	conf.SetDefault("database_engine", "postgres")
	conf.SetDefault("database_host", "localhost")
	conf.SetDefault("database_port", 5432)
	conf.SetDefault("database_name", "jumuiya")
	conf.SetDefault("database_user", "jumuiya")
	conf.SetDefault("database_password", "jumuiya")
	conf.SetDefault("database_admin_user", "postgres")
	conf.SetDefault("database_admin_password", "postgres")
	conf.SetDefault("database_disable_tls", true)
	conf.SetDefault("database_lock_timeout", 3*time.Second)
	conf.SetDefault("database_max_retries", 3)

	conf.SetDefault("invitation_code_length", 8)
	conf.SetDefault("invitation_max_code_retries", 10)
	conf.SetDefault("invitation_default_family_ttl", time.Duration(0))

	conf.SetDefault("ratelimit_enabled", false)
	conf.SetDefault("ratelimit_redis_addr", "localhost:6379")
	conf.SetDefault("ratelimit_redis_password", "")
	conf.SetDefault("ratelimit_redis_db", 0)
	conf.SetDefault("ratelimit_redeem_rate", 0.2)
	conf.SetDefault("ratelimit_redeem_burst", 5)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		conf.SetDefault("test_mode", true)
	}
	conf.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	wd := Getwd()
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	fromEmail, err := mail.ParseAddress(conf.GetString("default_from_email"))
	if err != nil {
		log.Fatalf("config.mail.ParseAddress(%s): %v", conf.GetString("default_from_email"), err)
	}

	return &Config{
		Debug:            conf.GetBool("debug"),
		TestMode:         conf.GetBool("test_mode"),
		AppName:          conf.GetString("app_name"),
		Env:              env,
		Build:            conf.GetString("build"),
		SecretKey:        conf.GetString("secret_key"),
		FrontendBaseURL:  conf.GetString("frontend_base_url"),
		DefaultFromEmail: *fromEmail,
		RollbarToken:     conf.GetString("rollbar_token"),
		SendgridApiKey:   conf.GetString("sendgrid_api_key"),
		WorkDir:          wd,
		Server: ServerConfig{
			Host:                      conf.GetString("server_host"),
			DebugHost:                 conf.GetString("server_debug_host"),
			ShutdownTimeout:           conf.GetDuration("server_shutdown_timeout"),
			JWTExpirationDelta:        conf.GetDuration("jwt_expiration_delta"),
			JWTRefreshExpirationDelta: conf.GetDuration("jwt_refresh_expiration_delta"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("database_engine"),
			Host:          conf.GetString("database_host"),
			Port:          conf.GetInt("database_port"),
			Name:          conf.GetString("database_name"),
			User:          conf.GetString("database_user"),
			Password:      conf.GetString("database_password"),
			AdminUser:     conf.GetString("database_admin_user"),
			AdminPassword: conf.GetString("database_admin_password"),
			DisableTLS:    conf.GetBool("database_disable_tls"),
			LockTimeout:   conf.GetDuration("database_lock_timeout"),
			MaxRetries:    conf.GetInt("database_max_retries"),
		},
		Invitations: InvitationConfig{
			CodeLength:       conf.GetInt("invitation_code_length"),
			MaxCodeRetries:   conf.GetInt("invitation_max_code_retries"),
			DefaultFamilyTTL: conf.GetDuration("invitation_default_family_ttl"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       conf.GetBool("ratelimit_enabled"),
			RedisAddr:     conf.GetString("ratelimit_redis_addr"),
			RedisPassword: conf.GetString("ratelimit_redis_password"),
			RedisDB:       conf.GetInt("ratelimit_redis_db"),
			RedeemRate:    conf.GetFloat64("ratelimit_redeem_rate"),
			RedeemBurst:   conf.GetInt("ratelimit_redeem_burst"),
		},
	}
}
