package core

import (
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName  string
		Env      string // DEV (default), TEST, QA, PROD
		Build    string
		Debug    bool
		TestMode bool
		WorkDir  string

		SecretKey        string
		FrontendBaseURL  string
		RollbarToken     string
		AnswersSecretKey string // base64-encoded 32-byte key for answers at-rest encryption

		Server   ServerConfig
		Database DatabaseConfig
		Email    EmailConfig
	}

	ServerConfig struct {
		Host               string
		Addr               string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Host          string
		Port          string
		DisableTLS    bool
	}

	EmailConfig struct {
		SendgridAPIKey   string
		DefaultFromEmail string
		// StudyInboxEmail receives all submission notifications.
		StudyInboxEmail string
		SendTimeout     time.Duration
	}
)

func (c DatabaseConfig) Address() string { return c.Host + ":" + c.Port }

func (c *Config) DefaultFromEmail() mail.Address {
	return mail.Address{Name: c.AppName, Address: c.Email.DefaultFromEmail}
}

func (c *Config) StudyInboxEmail() mail.Address {
	return mail.Address{Name: c.AppName + " Study", Address: c.Email.StudyInboxEmail}
}

// NewConfig loads the app configuration from the environment,
// merging in a `config/.env.<env>` file if one exists.
func NewConfig(workDir string) (*Config, error) {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Fomu")
	v.SetDefault("build", "dev")
	v.SetDefault("secretKey", "+_fy3m@a$t+yn#0e(cu^m9-vrkb)-7u3ww=k2)9y8b=d6ng&kb")
	v.SetDefault("serverHost", "localhost")
	v.SetDefault("serverAddr", ":8000")
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("databaseEngine", "postgres")
	v.SetDefault("databaseName", "fomu")
	v.SetDefault("databaseUser", "fomu")
	v.SetDefault("databasePassword", "fomu")
	v.SetDefault("databaseHost", "localhost")
	v.SetDefault("databasePort", "5432")
	v.SetDefault("databaseDisableTLS", true)
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("emailSendTimeout", 5*time.Second)

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err = godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrapf(err, "loading %s", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "checking %s", dotEnvPath)
	}
	v.AutomaticEnv()

	conf := &Config{
		AppName:          v.GetString("appName"),
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         env == "TEST",
		WorkDir:          workDir,
		SecretKey:        v.GetString("secretKey"),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		RollbarToken:     v.GetString("rollbarToken"),
		AnswersSecretKey: v.GetString("answersSecretKey"),
		Server: ServerConfig{
			Host:               v.GetString("serverHost"),
			Addr:               v.GetString("serverAddr"),
			ShutdownTimeout:    v.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("jwtExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("databaseEngine"),
			Name:          v.GetString("databaseName"),
			User:          v.GetString("databaseUser"),
			Password:      v.GetString("databasePassword"),
			AdminUser:     v.GetString("databaseAdminUser"),
			AdminPassword: v.GetString("databaseAdminPassword"),
			Host:          v.GetString("databaseHost"),
			Port:          v.GetString("databasePort"),
			DisableTLS:    v.GetBool("databaseDisableTLS"),
		},
		Email: EmailConfig{
			SendgridAPIKey:   v.GetString("sendgridApiKey"),
			DefaultFromEmail: v.GetString("defaultFromEmail"),
			StudyInboxEmail:  v.GetString("studyInboxEmail"),
			SendTimeout:      v.GetDuration("emailSendTimeout"),
		},
	}
	return conf, nil
}

// NewTestConfig returns a Config suitable for unit tests; no env lookups.
func NewTestConfig() *Config {
	return &Config{
		AppName:          "Fomu",
		Env:              "TEST",
		Build:            "test",
		Debug:            true,
		TestMode:         true,
		SecretKey:        "secret",
		AnswersSecretKey: "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=", // "0123456789abcdef0123456789abcdef"
		Server: ServerConfig{
			Host:               "localhost",
			Addr:               ":0",
			ShutdownTimeout:    time.Second,
			JWTExpirationDelta: time.Hour,
		},
		Email: EmailConfig{
			DefaultFromEmail: "noreply@test.local",
			StudyInboxEmail:  "study@test.local",
			SendTimeout:      time.Second,
		},
	}
}

// Getwd finds the project root by walking up from the current directory
// until a go.mod file is found.
// go-test changes the working directory to the test package being run.
// see: https://stackoverflow.com/questions/23847003/golang-tests-and-working-directory
func Getwd() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	currDir := wd
	for {
		if _, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil {
			return currDir, nil
		}
		newDir := filepath.Dir(currDir)
		if newDir == string(os.PathSeparator) || newDir == currDir {
			return "", fmt.Errorf("project root not found from %s", wd)
		}
		currDir = newDir
	}
}
