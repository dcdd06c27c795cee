/*
Copyright 2025 FinBoost Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5002"

	// PayPal sandbox is the default; production deploys override via config.
	DEFAULT_PAYPAL_URL = "https://api-m.sandbox.paypal.com"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	Secure    bool   `json:"secure" envconfig:"FINBOOST_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"FINBOOST_SERVER_SECRET_KEY"`
	Port      string `json:"port" envconfig:"FINBOOST_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"FINBOOST_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns string `json:"dns" envconfig:"FINBOOST_REDIS_DNS"`
}

// PayPalConfig holds the Payouts API credentials and client behaviour knobs.
// TimeoutSec bounds each HTTP call; MaxRetries bounds the exponential backoff
// used for transport errors and 5xx responses.
type PayPalConfig struct {
	BaseURL      string `json:"base_url" envconfig:"FINBOOST_PAYPAL_BASE_URL"`
	ClientID     string `json:"client_id" envconfig:"FINBOOST_PAYPAL_CLIENT_ID"`
	ClientSecret string `json:"client_secret" envconfig:"FINBOOST_PAYPAL_CLIENT_SECRET"`
	Currency     string `json:"currency" envconfig:"FINBOOST_PAYPAL_CURRENCY"`
	TimeoutSec   int    `json:"timeout_sec" envconfig:"FINBOOST_PAYPAL_TIMEOUT_SEC"`
	MaxRetries   int    `json:"max_retries" envconfig:"FINBOOST_PAYPAL_MAX_RETRIES"`
	EmailSubject string `json:"email_subject" envconfig:"FINBOOST_PAYPAL_EMAIL_SUBJECT"`
}

type QueueConfig struct {
	WebhookQueue string `json:"webhook_queue" envconfig:"FINBOOST_QUEUE_WEBHOOK"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"FINBOOST_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"FINBOOST_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"FINBOOST_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

// BackupConfig controls local pg_dump backups and their S3 upload.
type BackupConfig struct {
	Dir                string `json:"dir" envconfig:"FINBOOST_BACKUP_DIR"`
	S3BucketName       string `json:"s3_bucket_name" envconfig:"FINBOOST_S3_BUCKET_NAME"`
	S3Region           string `json:"s3_region" envconfig:"FINBOOST_S3_REGION"`
	AwsAccessKeyID     string `json:"aws_access_key_id" envconfig:"FINBOOST_AWS_ACCESS_KEY_ID"`
	AwsSecretAccessKey string `json:"aws_secret_access_key" envconfig:"FINBOOST_AWS_SECRET_ACCESS_KEY"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

type Configuration struct {
	ProjectName     string           `json:"project_name" envconfig:"FINBOOST_PROJECT_NAME"`
	EnableTelemetry bool             `json:"enable_telemetry" envconfig:"FINBOOST_ENABLE_TELEMETRY"`
	Server          ServerConfig     `json:"server"`
	DataSource      DataSourceConfig `json:"data_source"`
	Redis           RedisConfig      `json:"redis"`
	PayPal          PayPalConfig     `json:"paypal"`
	Queue           QueueConfig      `json:"queue"`
	Notification    Notification     `json:"notification"`
	RateLimit       RateLimitConfig  `json:"rate_limit"`
	Backup          BackupConfig     `json:"backup"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("finboost", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called finboost.json with your config")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "FinBoost Payouts"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.PayPal.BaseURL == "" {
		cnf.PayPal.BaseURL = DEFAULT_PAYPAL_URL
	}
	cnf.PayPal.BaseURL = strings.TrimRight(strings.TrimSpace(cnf.PayPal.BaseURL), "/")
	if cnf.PayPal.Currency == "" {
		cnf.PayPal.Currency = "USD"
	}
	if cnf.PayPal.TimeoutSec <= 0 {
		cnf.PayPal.TimeoutSec = 30
	}
	if cnf.PayPal.MaxRetries <= 0 {
		cnf.PayPal.MaxRetries = 3
	}
	if cnf.PayPal.EmailSubject == "" {
		cnf.PayPal.EmailSubject = "You have a reward from FinBoost!"
	}

	if cnf.Queue.WebhookQueue == "" {
		cnf.Queue.WebhookQueue = "payout:webhook"
	}

	if cnf.Backup.Dir == "" {
		cnf.Backup.Dir = "backups"
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
