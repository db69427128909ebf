package main

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/snapcal/snapcal/internal/logger"
)

const (
	defaultListenAddr    = "localhost:8000"
	defaultLoggingLevel  = logger.LevelInfo
	defaultEnvironment   = logger.EnvProduction
	defaultVisionAPIURL  = "https://generativelanguage.googleapis.com"
	defaultVisionModel   = "gemini-2.0-flash"
	defaultSignupCredits = 100
	defaultMaxCredits    = 1000
	defaultEstimateCost  = 1
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the snapcal service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Secret key
	// Some internal parts (like signing JWT tokens) uses symmetric encryption, so this key is used for that purpose
	SecretKey string

	// Environment
	Environment string

	// Google OAuth client id to verify id tokens against
	// Google sign in stays disabled when empty
	GoogleClientID string

	// Vision api endpoint, model and key
	VisionAPIURL string
	VisionModel  string
	VisionAPIKey string

	// Credit policy: signup grant, account cap and estimate price
	SignupCredits int64
	MaxCredits    int64
	EstimateCost  int64
}

func NewConfig() *Config {
	return &Config{
		LogLevel:      defaultLoggingLevel,
		ListenAddr:    defaultListenAddr,
		Environment:   defaultEnvironment,
		VisionAPIURL:  defaultVisionAPIURL,
		VisionModel:   defaultVisionModel,
		SignupCredits: defaultSignupCredits,
		MaxCredits:    defaultMaxCredits,
		EstimateCost:  defaultEstimateCost,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		c.LoadEnv(func(key string) string {
			return envMap[key]
		})
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}
	setInt64 := func(o *int64) func(value string) {
		return func(value string) {
			if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
				*o = parsed
			}
		}
	}

	envMap := map[string]func(string){
		"RUN_ADDRESS":      setString(&c.ListenAddr),
		"DATABASE_URI":     setString(&c.DatabaseDSN),
		"SECRET_KEY":       setString(&c.SecretKey),
		"LOG_LEVEL":        setString(&c.LogLevel),
		"ENVIRONMENT":      setString(&c.Environment),
		"GOOGLE_CLIENT_ID": setString(&c.GoogleClientID),
		"VISION_API_URL":   setString(&c.VisionAPIURL),
		"VISION_MODEL":     setString(&c.VisionModel),
		"VISION_API_KEY":   setString(&c.VisionAPIKey),
		"SIGNUP_CREDITS":   setInt64(&c.SignupCredits),
		"MAX_CREDITS":      setInt64(&c.MaxCredits),
		"ESTIMATE_COST":    setInt64(&c.EstimateCost),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("snapcal", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVar(&c.GoogleClientID, "google-client-id", c.GoogleClientID, "Google OAuth client id")
	fs.StringVar(&c.VisionAPIURL, "vision-url", c.VisionAPIURL, "Vision api base url")
	fs.StringVar(&c.VisionModel, "vision-model", c.VisionModel, "Vision model name")
	fs.StringVar(&c.VisionAPIKey, "vision-key", c.VisionAPIKey, "Vision api key")
	fs.Int64Var(&c.SignupCredits, "signup-credits", c.SignupCredits, "Credits granted to new users")
	fs.Int64Var(&c.MaxCredits, "max-credits", c.MaxCredits, "Cap for account total credits")
	fs.Int64Var(&c.EstimateCost, "estimate-cost", c.EstimateCost, "Credit cost of one estimate")

	return fs.Parse(args)
}
