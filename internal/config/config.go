// Package config reads process configuration from the environment. A .env
// file in the working directory is loaded first when present.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"

	"lifecycle-service/internal/bus"
)

const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

type DBConfig struct {
	Host string
	Port string
	User string
	Pass string
	Name string
}

func (d DBConfig) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Pass
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(d.Host, d.Port)
	cfg.DBName = d.Name
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN()
}

type ServiceConfig struct {
	Addr      string
	Store     string
	Shards    []DBConfig
	RedisAddr string
	Brokers   []string
	Topology  bus.Topology
	JWTSecret []byte
	// RateLimit is requests per second per client address.
	RateLimit float64
	Burst     int
}

type SessionConfig struct {
	BaseURL     string
	Token       string
	Brokers     []string
	Topology    bus.Topology
	GroupPrefix string
	Timeout     time.Duration
	PageSize    int
}

func load() {
	// Missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func getenvFloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return def
	}
	return v
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func topology() bus.Topology {
	return bus.Topology{
		OrdersTopic:       getenv("KAFKA_ORDERS_TOPIC", bus.DefaultTopology.OrdersTopic),
		AppointmentsTopic: getenv("KAFKA_APPOINTMENTS_TOPIC", bus.DefaultTopology.AppointmentsTopic),
	}
}

// LoadService reads the server configuration. Shards come from DB1_* to
// DBn_* with n = DB_SHARDS (3 by default).
func LoadService() (ServiceConfig, error) {
	load()
	cfg := ServiceConfig{
		Addr:      getenv("HTTP_ADDR", ":8082"),
		Store:     getenv("STORE", StoreMySQL),
		RedisAddr: os.Getenv("REDIS_ADDR"),
		Brokers:   getKafkaBrokerURLs(),
		Topology:  topology(),
		JWTSecret: []byte(os.Getenv("JWT_SECRET")),
		RateLimit: getenvFloat("RATE_LIMIT", 10),
		Burst:     getenvInt("RATE_BURST", 20),
	}
	if len(cfg.JWTSecret) == 0 {
		return cfg, fmt.Errorf("JWT_SECRET is not set")
	}
	if cfg.Store != StoreMySQL && cfg.Store != StoreMemory {
		return cfg, fmt.Errorf("unknown STORE %q", cfg.Store)
	}
	if cfg.Store == StoreMemory {
		return cfg, nil
	}
	for i := 1; i <= getenvInt("DB_SHARDS", 3); i++ {
		prefix := fmt.Sprintf("DB%d_", i)
		cfg.Shards = append(cfg.Shards, DBConfig{
			Host: getenv(prefix+"HOST", "localhost"),
			Port: getenv(prefix+"PORT", "3306"),
			User: os.Getenv(prefix + "USER"),
			Pass: os.Getenv(prefix + "PASS"),
			Name: os.Getenv(prefix + "NAME"),
		})
	}
	return cfg, nil
}

func LoadSession() (SessionConfig, error) {
	load()
	cfg := SessionConfig{
		BaseURL:     getenv("LIFECYCLE_URL", "http://localhost:8082"),
		Token:       os.Getenv("LIFECYCLE_TOKEN"),
		Brokers:     getKafkaBrokerURLs(),
		Topology:    topology(),
		GroupPrefix: getenv("KAFKA_GROUP_PREFIX", "lifecycle-session"),
		Timeout:     getenvDuration("REQUEST_TIMEOUT", 15*time.Second),
		PageSize:    getenvInt("PAGE_SIZE", 10),
	}
	if cfg.Token == "" {
		return cfg, fmt.Errorf("LIFECYCLE_TOKEN is not set")
	}
	return cfg, nil
}
