package config

import (
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	mu sync.RWMutex `yaml:"-"`

	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Messaging MessagingConfig `yaml:"messaging"`
	Conductor ConductorConfig `yaml:"conductor"`
	Web       WebConfig       `yaml:"web"`
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MessagingConfig struct {
	Backend             string        `yaml:"backend"` // mqtt or kafka
	MQTT                MQTTConfig    `yaml:"mqtt"`
	Kafka               KafkaConfig   `yaml:"kafka"`
	CallTimeout         time.Duration `yaml:"call_timeout"`
	OutboxDrainInterval time.Duration `yaml:"outbox_drain_interval"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	GroupID string   `yaml:"group_id"`
}

type ConductorConfig struct {
	Hostname            string        `yaml:"hostname"`
	RegistrationAgent   bool          `yaml:"registration_agent"`
	WSURL               string        `yaml:"wsurl"`
	Realm               string        `yaml:"realm"`
	LockRetryAttempts   int           `yaml:"lock_retry_attempts"`
	LockRetryInterval   time.Duration `yaml:"lock_retry_interval"`
	WorkerPoolSize      int           `yaml:"worker_pool_size"`
	HeartbeatInterval   time.Duration `yaml:"heartbeat_interval"`
	StaleAgentThreshold time.Duration `yaml:"stale_agent_threshold"`
}

type WebConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	SessionSecret string `yaml:"session_secret"`
}

func Defaults() *Config {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "conductor"
	}
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{Path: "iotronic.db"},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "iotronic",
				User:     "iotronic",
				Password: "",
				SSLMode:  "disable",
			},
		},
		Redis: RedisConfig{
			Address:  "localhost:6379",
			Password: "",
			DB:       0,
		},
		Messaging: MessagingConfig{
			Backend: "mqtt",
			MQTT: MQTTConfig{
				Broker:   "localhost",
				Port:     1883,
				ClientID: "iotronic-" + hostname,
			},
			Kafka: KafkaConfig{
				Brokers: []string{"localhost:9092"},
				GroupID: "iotronic",
			},
			CallTimeout:         10 * time.Second,
			OutboxDrainInterval: 5 * time.Second,
		},
		Conductor: ConductorConfig{
			Hostname:            hostname,
			RegistrationAgent:   false,
			WSURL:               "ws://localhost:8181/",
			Realm:               "s4t",
			LockRetryAttempts:   3,
			LockRetryInterval:   1 * time.Second,
			WorkerPoolSize:      8,
			HeartbeatInterval:   60 * time.Second,
			StaleAgentThreshold: 5 * time.Minute,
		},
		Web: WebConfig{
			Host:          "0.0.0.0",
			Port:          8083,
			SessionSecret: "change-me-in-production",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Lock()   { c.mu.Lock() }
func (c *Config) Unlock() { c.mu.Unlock() }
