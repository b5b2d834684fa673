package core

import (
	"fmt"
	"log"
	"net"
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
		Host               string
		Port               int
		PortRetries        int
		DebugHost          string
		PublicDir          string
		UploadDir          string
		MaxUploadSize      int64
		JWTExpirationDelta time.Duration
		ShutdownTimeout    time.Duration
	}

	DatabaseConfig struct {
		Engine        string // postgres | memory
		Host          string
		Port          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Name          string
		DisableTLS    bool
		MaxOpenConns  int
	}

	RedisConfig struct {
		Addr     string
		Password string
		DB       int
	}

	RateLimitConfig struct {
		Attempts int
		Window   time.Duration
	}

	SeedConfig struct {
		AdminName     string
		AdminUsername string
		AdminPassword string
		AdminEmail    string
	}

	Config struct {
		AppName                   string
		Env                       string
		Build                     string
		Debug                     bool
		TestMode                  bool
		SecretKey                 string
		FrontendBaseURL           string
		DefaultFromEmail          string
		EmailBackend              string // console | sendgrid | resend
		SendgridApiKey            string
		ResendApiKey              string
		RollbarToken              string
		ResetStatsCode            string
		LicenseExpiry             time.Time
		PasswordResetTimeoutDelta time.Duration

		Server    ServerConfig
		Database  DatabaseConfig
		Redis     RedisConfig
		RateLimit RateLimitConfig
		Seed      SeedConfig
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func (c ServerConfig) Address(port int) string {
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// NewConfig loads the configuration for the current ENV (DEV by default).
// config/.env.<env> is read when it exists; variables prefixed with the env name override everything.
func NewConfig() *Config {
	v := viper.New()

	v.SetTypeByDefaultValue(true)
	v.SetDefault("appName", "Madrasa")
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("secretKey", "m4dr@sa-7hq2+x!c$0v3=kz(e9#b8t1wn&yd6ruj)a5lpsgfo")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("emailBackend", "console")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("resendApiKey", "")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("resetStatsCode", "DEV-2024-RESET")
	v.SetDefault("licenseExpiry", "2099-12-31")
	v.SetDefault("passwordResetTimeoutDelta", time.Hour)

	v.SetDefault("serverHost", "")
	v.SetDefault("serverPort", 3000)
	v.SetDefault("serverPortRetries", 10)
	v.SetDefault("serverDebugHost", "localhost:4000")
	v.SetDefault("serverPublicDir", "public")
	v.SetDefault("serverUploadDir", "uploads")
	v.SetDefault("serverMaxUploadSize", int64(50<<20))
	v.SetDefault("serverJWTExpirationDelta", 7*24*time.Hour)
	v.SetDefault("serverShutdownTimeout", 5*time.Second)

	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", "5432")
	v.SetDefault("dbUser", "madrasa")
	v.SetDefault("dbPassword", "madrasa")
	v.SetDefault("dbAdminUser", "postgres")
	v.SetDefault("dbAdminPassword", "postgres")
	v.SetDefault("dbName", "madrasa")
	v.SetDefault("dbDisableTLS", true)
	v.SetDefault("dbMaxOpenConns", 10)

	v.SetDefault("redisAddr", "")
	v.SetDefault("redisPassword", "")
	v.SetDefault("redisDB", 0)
	v.SetDefault("rateLimitAttempts", 10)
	v.SetDefault("rateLimitWindow", 15*time.Minute)

	v.SetDefault("seedAdminName", "السيد المدير")
	v.SetDefault("seedAdminUsername", "admin")
	v.SetDefault("seedAdminPassword", "admin123")
	v.SetDefault("seedAdminEmail", "admin@school.com")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
		v.SetDefault("dbEngine", "memory")
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	expiry, err := time.Parse("2006-01-02", v.GetString("licenseExpiry"))
	if err != nil {
		log.Fatalf("config.licenseExpiry: %v", err)
	}

	return &Config{
		AppName:                   v.GetString("appName"),
		Env:                       env,
		Build:                     v.GetString("build"),
		Debug:                     v.GetBool("debug"),
		TestMode:                  v.GetBool("testMode"),
		SecretKey:                 v.GetString("secretKey"),
		FrontendBaseURL:           strings.TrimSuffix(v.GetString("frontendBaseURL"), "/"),
		DefaultFromEmail:          v.GetString("defaultFromEmail"),
		EmailBackend:              strings.ToLower(v.GetString("emailBackend")),
		SendgridApiKey:            v.GetString("sendgridApiKey"),
		ResendApiKey:              v.GetString("resendApiKey"),
		RollbarToken:              v.GetString("rollbarToken"),
		ResetStatsCode:            v.GetString("resetStatsCode"),
		LicenseExpiry:             endOfDay(expiry),
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		Server: ServerConfig{
			Host:               v.GetString("serverHost"),
			Port:               v.GetInt("serverPort"),
			PortRetries:        v.GetInt("serverPortRetries"),
			DebugHost:          v.GetString("serverDebugHost"),
			PublicDir:          v.GetString("serverPublicDir"),
			UploadDir:          v.GetString("serverUploadDir"),
			MaxUploadSize:      v.GetInt64("serverMaxUploadSize"),
			JWTExpirationDelta: v.GetDuration("serverJWTExpirationDelta"),
			ShutdownTimeout:    v.GetDuration("serverShutdownTimeout"),
		},
		Database: DatabaseConfig{
			Engine:        strings.ToLower(v.GetString("dbEngine")),
			Host:          v.GetString("dbHost"),
			Port:          v.GetString("dbPort"),
			User:          v.GetString("dbUser"),
			Password:      v.GetString("dbPassword"),
			AdminUser:     v.GetString("dbAdminUser"),
			AdminPassword: v.GetString("dbAdminPassword"),
			Name:          v.GetString("dbName"),
			DisableTLS:    v.GetBool("dbDisableTLS"),
			MaxOpenConns:  v.GetInt("dbMaxOpenConns"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redisAddr"),
			Password: v.GetString("redisPassword"),
			DB:       v.GetInt("redisDB"),
		},
		RateLimit: RateLimitConfig{
			Attempts: v.GetInt("rateLimitAttempts"),
			Window:   v.GetDuration("rateLimitWindow"),
		},
		Seed: SeedConfig{
			AdminName:     v.GetString("seedAdminName"),
			AdminUsername: v.GetString("seedAdminUsername"),
			AdminPassword: v.GetString("seedAdminPassword"),
			AdminEmail:    v.GetString("seedAdminEmail"),
		},
	}
}

// NewTestConfig returns a Config suitable for package tests: memory engine, no debug, no external services.
func NewTestConfig() *Config {
	return &Config{
		AppName:                   "Madrasa",
		Env:                       "TEST",
		Build:                     "test",
		TestMode:                  true,
		SecretKey:                 "test-secret",
		FrontendBaseURL:           "http://localhost:3000",
		DefaultFromEmail:          "noreply@localhost",
		EmailBackend:              "console",
		ResetStatsCode:            "DEV-2024-RESET",
		LicenseExpiry:             endOfDay(time.Date(2099, time.December, 31, 0, 0, 0, 0, time.UTC)),
		PasswordResetTimeoutDelta: time.Hour,
		Server: ServerConfig{
			Port:               3000,
			MaxUploadSize:      10 << 20,
			JWTExpirationDelta: time.Hour,
			ShutdownTimeout:    time.Second,
		},
		Database:  DatabaseConfig{Engine: "memory"},
		RateLimit: RateLimitConfig{Attempts: 100, Window: time.Minute},
		Seed: SeedConfig{
			AdminName:     "السيد المدير",
			AdminUsername: "admin",
			AdminPassword: "admin123",
			AdminEmail:    "admin@school.com",
		},
	}
}

func (c *Config) String() string {
	return fmt.Sprintf("%s (%s) env=%s debug=%t db=%s", c.AppName, c.Build, c.Env, c.Debug, c.Database.Engine)
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, time.UTC)
}
