package core

import (
	"net"
	"net/mail"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Storage drivers
const (
	StoragePostgres = "postgres"
	StorageMongo    = "mongo"
	StorageMemory   = "memory"
)

// Email providers
const (
	EmailConsole  = "console"
	EmailSendgrid = "sendgrid"
	EmailSMTP     = "smtp"
)

type (
	ServerConfig struct {
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	OTPConfig struct {
		Timeout       time.Duration
		MaxAttempts   int
		RateLimit     int // requests per RateWindow and IP; 0 disables
		RateWindow    time.Duration
		SweepInterval time.Duration
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

	MongoConfig struct {
		URI      string
		Database string
		Timeout  time.Duration
	}

	EmailConfig struct {
		Provider       string
		SendgridAPIKey string
		SMTPHost       string
		SMTPPort       int
		SMTPUsername   string
		SMTPPassword   string
	}

	Config struct {
		Env              string // DEV (local; default), TEST, QA, PROD
		Build            string
		Debug            bool
		TestMode         bool
		AppName          string
		SecretKey        string
		FrontendBaseURL  string
		DefaultFromEmail string
		RollbarToken     string
		WorkDir          string
		Storage          string

		Server   ServerConfig
		OTP      OTPConfig
		Database DatabaseConfig
		Mongo    MongoConfig
		Email    EmailConfig
	}
)

// Address returns the postgres connection URL.
func (db DatabaseConfig) Address() string {
	sslMode := "require"
	if db.DisableTLS {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(db.User, db.Password),
		Host:     net.JoinHostPort(db.Host, strconv.Itoa(db.Port)),
		Path:     db.Name,
		RawQuery: url.Values{"sslmode": {sslMode}, "timezone": {"utc"}}.Encode(),
	}
	return u.String()
}

// AdminAddress returns the connection URL of the maintenance database, authenticated as the admin user.
func (db DatabaseConfig) AdminAddress() string {
	admin := db
	admin.User, admin.Password, admin.Name = db.AdminUser, db.AdminPassword, "postgres"
	return admin.Address()
}

func (conf *Config) FromEmail() mail.Address {
	return mail.Address{Name: conf.AppName, Address: conf.DefaultFromEmail}
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Madrasa")
	v.SetDefault("secretKey", "k2f8-hsw)wq1$+9=ab&u3nd2(v!p)#*c7(#zr4h^$xbl9kq")
	v.SetDefault("frontendBaseUrl", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("build", "dev")
	v.SetDefault("storage", StoragePostgres)

	v.SetDefault("server.host", "0.0.0.0:8000")
	v.SetDefault("server.debugHost", "0.0.0.0:4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)

	v.SetDefault("otp.timeout", 10*time.Minute)
	v.SetDefault("otp.maxAttempts", 5)
	v.SetDefault("otp.rateLimit", 5)
	v.SetDefault("otp.rateWindow", time.Minute)
	v.SetDefault("otp.sweepInterval", time.Minute)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "madrasa")
	v.SetDefault("database.user", "madrasa")
	v.SetDefault("database.password", "madrasa")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTls", true)

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "madrasa")
	v.SetDefault("mongo.timeout", 10*time.Second)

	v.SetDefault("email.provider", EmailConsole)
	v.SetDefault("email.smtpPort", 587)
}

// NewConfig loads the configuration from the environment, the optional `config/.env.<env>` file and defaults.
// Environment variables are prefixed by the upper-cased env name, e.g. `PROD_DATABASE_HOST`.
func NewConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	workDir, err := Getwd()
	if err != nil {
		return nil, err
	}

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrapf(err, "loading %s", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "stat %s", dotEnvPath)
	}
	v.AutomaticEnv()

	conf := &Config{
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		AppName:          v.GetString("appName"),
		SecretKey:        v.GetString("secretKey"),
		FrontendBaseURL:  v.GetString("frontendBaseUrl"),
		DefaultFromEmail: v.GetString("defaultFromEmail"),
		RollbarToken:     v.GetString("rollbarToken"),
		WorkDir:          workDir,
		Storage:          v.GetString("storage"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			DebugHost:                 v.GetString("server.debugHost"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
		},
		OTP: OTPConfig{
			Timeout:       v.GetDuration("otp.timeout"),
			MaxAttempts:   v.GetInt("otp.maxAttempts"),
			RateLimit:     v.GetInt("otp.rateLimit"),
			RateWindow:    v.GetDuration("otp.rateWindow"),
			SweepInterval: v.GetDuration("otp.sweepInterval"),
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
			DisableTLS:    v.GetBool("database.disableTls"),
		},
		Mongo: MongoConfig{
			URI:      v.GetString("mongo.uri"),
			Database: v.GetString("mongo.database"),
			Timeout:  v.GetDuration("mongo.timeout"),
		},
		Email: EmailConfig{
			Provider:       v.GetString("email.provider"),
			SendgridAPIKey: v.GetString("email.sendgridApiKey"),
			SMTPHost:       v.GetString("email.smtpHost"),
			SMTPPort:       v.GetInt("email.smtpPort"),
			SMTPUsername:   v.GetString("email.smtpUsername"),
			SMTPPassword:   v.GetString("email.smtpPassword"),
		},
	}
	return conf, conf.validate()
}

func (conf *Config) validate() error {
	switch conf.Storage {
	case StoragePostgres, StorageMongo, StorageMemory:
	default:
		return errors.Errorf("unknown storage driver %q", conf.Storage)
	}
	switch conf.Email.Provider {
	case EmailConsole, EmailSendgrid, EmailSMTP:
	default:
		return errors.Errorf("unknown email provider %q", conf.Email.Provider)
	}
	if conf.OTP.Timeout <= 0 {
		return errors.New("otp timeout must be positive")
	}
	if conf.OTP.MaxAttempts < 1 {
		return errors.New("otp max attempts must be at least 1")
	}
	if conf.OTP.SweepInterval <= 0 {
		return errors.New("otp sweep interval must be positive")
	}
	if !conf.Debug && !conf.TestMode && conf.Env == "PROD" && strings.HasPrefix(conf.SecretKey, "k2f8-") {
		return errors.New("the default secret key must not be used in production")
	}
	return nil
}
