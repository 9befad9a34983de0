package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type SalesforceConfig struct {
	LoginURL     string `mapstructure:"login_url"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	Username     string `mapstructure:"username"`
	// Password carries the security token appended to the end, as the bulk
	// API's password grant requires.
	Password   string `mapstructure:"password"`
	APIVersion string `mapstructure:"api_version"`
}

type EHRConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Practice string `mapstructure:"practice"`
}

type WorkerConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	JobDeadline  time.Duration `mapstructure:"job_deadline"`
}

type BrowserConfig struct {
	Image       string `mapstructure:"image"`
	ControlPort int    `mapstructure:"control_port"`
}

type Config struct {
	DatabaseURL string           `mapstructure:"database_url"`
	ServerPort  string           `mapstructure:"server_port"`
	JWTSecret   string           `mapstructure:"jwt_secret"`
	Salesforce  SalesforceConfig `mapstructure:"salesforce"`
	EHR         EHRConfig        `mapstructure:"ehr"`
	Worker      WorkerConfig     `mapstructure:"worker"`
	Browser     BrowserConfig    `mapstructure:"browser"`
}

// Load reads the configuration from a YAML file and returns a Config instance.
func Load() *Config {
	v := viper.New()

	// Look for config in the current directory and ./config
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.AddConfigPath("./config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		log.Fatalf("Error unmarshalling config: %v", err)
	}

	// Fallback defaults
	if config.ServerPort == "" {
		config.ServerPort = "8080"
	}
	if config.JWTSecret == "" {
		log.Fatal("JWT secret must be set in the config file")
	}
	if config.Salesforce.LoginURL == "" {
		config.Salesforce.LoginURL = "https://login.salesforce.com"
	}
	if config.Salesforce.APIVersion == "" {
		config.Salesforce.APIVersion = "49.0"
	}
	if config.Worker.PollInterval == 0 {
		config.Worker.PollInterval = 2 * time.Second
	}
	if config.Worker.JobDeadline == 0 {
		config.Worker.JobDeadline = 15 * time.Minute
	}
	if config.Browser.Image == "" {
		config.Browser.Image = "chromedp/headless-shell:latest"
	}
	if config.Browser.ControlPort == 0 {
		config.Browser.ControlPort = 9222
	}

	return &config
}
