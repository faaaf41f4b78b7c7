package core

import (
	"fmt"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host            string
		Port            int
		DebugHost       string
		ShutdownTimeout time.Duration
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		CookieDomain    string
		SecureCookies   bool
	}

	AuthConfig struct {
		JWTExpirationDelta        time.Duration
		RememberMeDuration        time.Duration
		NotRememberMeDuration     time.Duration
		PasswordResetTimeoutDelta time.Duration
		PasswordResetRate         time.Duration // min interval between two reset emails for the same address
		PasswordResetBurst        int
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
	}

	RedisConfig struct {
		Addr     string
		Password string
		DB       int
	}

	StorageConfig struct {
		Bucket          string
		ProjectID       string
		CredentialsFile string
		PublicBaseURL   string
	}

	LogsConfig struct {
		Dir        string
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
	}

	NoticesConfig struct {
		GenerateWorkers int
	}

	Config struct {
		Debug            bool
		TestMode         bool
		Env              string // DEV (local; default), TEST, QA, PROD
		Build            string
		AppName          string
		SecretKey        string
		FrontendBaseURL  string
		SendgridApiKey   string
		RollbarToken     string
		defaultFromEmail string

		Server   ServerConfig
		Auth     AuthConfig
		Database DatabaseConfig
		Redis    RedisConfig
		Storage  StorageConfig
		Logs     LogsConfig
		Notices  NoticesConfig
	}
)

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: c.defaultFromEmail}
	}
	return *addr
}

func (c *Config) IsProd() bool { return c.Env == "PROD" }

func (db DatabaseConfig) Address() string {
	return net.JoinHostPort(db.Host, strconv.Itoa(db.Port))
}

func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Validate rejects configurations the API cannot run with.
func (c *Config) Validate() error {
	if c.IsProd() && (c.SecretKey == "" || c.SecretKey == defaultSecretKey) {
		return errors.New("secretKey must be set in PROD")
	}
	if c.Server.Port == 0 {
		return errors.New("server.port is required")
	}
	if c.Database.Port == 0 {
		return errors.New("database.port is required")
	}
	return nil
}

const defaultSecretKey = "9ef2a8c6-dev-only-(kq!7w$u)h@prs-online-#x4m^b0z"

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)

	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "PRS Online")
	v.SetDefault("secretKey", defaultSecretKey)
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "PRS Online <noreply@localhost>")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 4000)
	v.SetDefault("server.debugHost", "0.0.0.0:4001")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.readTimeout", 10*time.Second)
	v.SetDefault("server.writeTimeout", 30*time.Second)
	v.SetDefault("server.cookieDomain", "")
	v.SetDefault("server.secureCookies", false)

	v.SetDefault("auth.jwtExpirationDelta", 5*time.Minute)
	v.SetDefault("auth.rememberMeDuration", 30*24*time.Hour)
	v.SetDefault("auth.notRememberMeDuration", 5*24*time.Hour)
	v.SetDefault("auth.passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("auth.passwordResetRate", time.Minute)
	v.SetDefault("auth.passwordResetBurst", 3)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "prsonline")
	v.SetDefault("database.user", "prsonline")
	v.SetDefault("database.password", "prsonline")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.bucket", "prs-online-media")
	v.SetDefault("storage.projectId", "")
	v.SetDefault("storage.credentialsFile", "")
	v.SetDefault("storage.publicBaseURL", "https://storage.googleapis.com")

	v.SetDefault("logs.dir", "")
	v.SetDefault("logs.maxSizeMB", 50)
	v.SetDefault("logs.maxBackups", 5)
	v.SetDefault("logs.maxAgeDays", 28)

	v.SetDefault("notices.generateWorkers", 4)
}

// NewConfig loads the configuration of the current environment (ENV) from the environment variables,
// prefixed with the environment name (ex: DEV_SERVER_PORT), and the optional config/.env.<env> file.
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	case "QA", "PROD":
		v.SetDefault("debug", false)
		v.SetDefault("server.secureCookies", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	if err := loadDotEnv(env); err != nil {
		panic(err)
	}
	v.AutomaticEnv()

	conf := &Config{
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		Env:              env,
		Build:            v.GetString("build"),
		AppName:          v.GetString("appName"),
		SecretKey:        v.GetString("secretKey"),
		FrontendBaseURL:  strings.TrimSuffix(v.GetString("frontendBaseURL"), "/"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		defaultFromEmail: v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Port:            v.GetInt("server.port"),
			DebugHost:       v.GetString("server.debugHost"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
			ReadTimeout:     v.GetDuration("server.readTimeout"),
			WriteTimeout:    v.GetDuration("server.writeTimeout"),
			CookieDomain:    v.GetString("server.cookieDomain"),
			SecureCookies:   v.GetBool("server.secureCookies"),
		},
		Auth: AuthConfig{
			JWTExpirationDelta:        v.GetDuration("auth.jwtExpirationDelta"),
			RememberMeDuration:        v.GetDuration("auth.rememberMeDuration"),
			NotRememberMeDuration:     v.GetDuration("auth.notRememberMeDuration"),
			PasswordResetTimeoutDelta: v.GetDuration("auth.passwordResetTimeoutDelta"),
			PasswordResetRate:         v.GetDuration("auth.passwordResetRate"),
			PasswordResetBurst:        v.GetInt("auth.passwordResetBurst"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Storage: StorageConfig{
			Bucket:          v.GetString("storage.bucket"),
			ProjectID:       v.GetString("storage.projectId"),
			CredentialsFile: v.GetString("storage.credentialsFile"),
			PublicBaseURL:   strings.TrimSuffix(v.GetString("storage.publicBaseURL"), "/"),
		},
		Logs: LogsConfig{
			Dir:        v.GetString("logs.dir"),
			MaxSizeMB:  v.GetInt("logs.maxSizeMB"),
			MaxBackups: v.GetInt("logs.maxBackups"),
			MaxAgeDays: v.GetInt("logs.maxAgeDays"),
		},
		Notices: NoticesConfig{
			GenerateWorkers: v.GetInt("notices.generateWorkers"),
		},
	}
	return conf
}

// NewTestConfig returns the TEST configuration without reading the environment.
func NewTestConfig() *Config {
	v := viper.New()
	setDefaults(v)
	conf := &Config{
		Debug:            false,
		TestMode:         true,
		Env:              "TEST",
		Build:            "test",
		AppName:          v.GetString("appName"),
		SecretKey:        "test-secret",
		FrontendBaseURL:  "http://localhost:3000",
		defaultFromEmail: v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:            "localhost",
			Port:            4000,
			ShutdownTimeout: time.Second,
		},
		Auth: AuthConfig{
			JWTExpirationDelta:        v.GetDuration("auth.jwtExpirationDelta"),
			RememberMeDuration:        v.GetDuration("auth.rememberMeDuration"),
			NotRememberMeDuration:     v.GetDuration("auth.notRememberMeDuration"),
			PasswordResetTimeoutDelta: v.GetDuration("auth.passwordResetTimeoutDelta"),
			PasswordResetRate:         v.GetDuration("auth.passwordResetRate"),
			PasswordResetBurst:        v.GetInt("auth.passwordResetBurst"),
		},
		Database: DatabaseConfig{
			Engine:     "postgres",
			Host:       "localhost",
			Port:       5432,
			Name:       "prsonline_test",
			User:       "prsonline",
			Password:   "prsonline",
			DisableTLS: true,
		},
		Storage: StorageConfig{
			Bucket:        "prs-online-test",
			PublicBaseURL: "https://storage.googleapis.com",
		},
		Notices: NoticesConfig{GenerateWorkers: 2},
	}
	return conf
}

func loadDotEnv(env string) error {
	dir := os.Getenv("CONFIG_DIR")
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return errors.Wrap(err, "config.os.Getwd")
		}
		dir = filepath.Join(wd, "config")
	}

	dotEnvPath := filepath.Join(dir, ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return errors.Wrap(err, fmt.Sprintf("config.godotenv(%s)", dotEnvPath))
		}
	} else if !os.IsNotExist(err) {
		return errors.Wrap(err, fmt.Sprintf("config.os.Stat(%s)", dotEnvPath))
	}
	return nil
}
