package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const ConfigPathEnv = "LANPARTY_CONFIG"

type Config struct {
	Node      NodeConfig      `yaml:"node"`
	Party     PartyConfig     `yaml:"party"`
	Transport TransportConfig `yaml:"transport"`
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
}

type NodeConfig struct {
	// Address is the announced identity. Resolved from the interfaces when empty.
	Address   string `yaml:"address" env:"LANPARTY_ADDRESS"`
	Interface string `yaml:"interface" env:"LANPARTY_INTERFACE"`
	Index     uint8  `yaml:"index" env:"LANPARTY_INDEX" env-default:"1"`
}

type PartyConfig struct {
	MatchmakingDuration time.Duration `yaml:"matchmaking_duration" env:"LANPARTY_MATCHMAKING_DURATION" env-default:"30s"`
	DiscoveryInterval   time.Duration `yaml:"discovery_interval" env:"LANPARTY_DISCOVERY_INTERVAL" env-default:"1s"`
}

type TransportConfig struct {
	Kind string     `yaml:"kind" env:"LANPARTY_TRANSPORT" env-default:"udp"`
	UDP  UDPConfig  `yaml:"udp"`
	NATS NATSConfig `yaml:"nats"`
	Etcd EtcdConfig `yaml:"etcd"`
}

type UDPConfig struct {
	Group string `yaml:"group" env:"LANPARTY_UDP_GROUP" env-default:"239.0.0.1:53552"`
	TTL   int    `yaml:"ttl" env:"LANPARTY_UDP_TTL" env-default:"1"`
}

type NATSConfig struct {
	URL     string `yaml:"url" env:"LANPARTY_NATS_URL" env-default:"nats://127.0.0.1:4222"`
	Subject string `yaml:"subject" env:"LANPARTY_NATS_SUBJECT" env-default:"lanparty.party"`
}

type EtcdConfig struct {
	Endpoints   []string      `yaml:"endpoints" env:"LANPARTY_ETCD_ENDPOINTS" env-separator:"," env-default:"http://127.0.0.1:2379"`
	Prefix      string        `yaml:"prefix" env:"LANPARTY_ETCD_PREFIX" env-default:"/lanparty/bus"`
	TTL         int64         `yaml:"ttl" env:"LANPARTY_ETCD_TTL" env-default:"10"`
	DialTimeout time.Duration `yaml:"dial_timeout" env:"LANPARTY_ETCD_DIAL_TIMEOUT" env-default:"5s"`
}

type HTTPConfig struct {
	Address string `yaml:"address" env:"LANPARTY_HTTP_ADDRESS" env-default:":8080"`
}

type LogConfig struct {
	Level       string `yaml:"level" env:"LANPARTY_LOG_LEVEL" env-default:"info"`
	Development bool   `yaml:"development" env:"LANPARTY_LOG_DEVELOPMENT"`
}

const (
	TransportUDP  = "udp"
	TransportNATS = "nats"
	TransportEtcd = "etcd"
)

// Load reads an optional .env file, then the YAML file at path (or at
// $LANPARTY_CONFIG when path is empty), then the environment. Without any
// file the defaults and environment alone are used.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if path == "" {
		path = os.Getenv(ConfigPathEnv)
	}

	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("cannot load config file: %w", err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("cannot load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Transport.Kind {
	case TransportUDP, TransportNATS, TransportEtcd:
	default:
		return fmt.Errorf("unknown transport %q", c.Transport.Kind)
	}
	if c.Node.Index == 0 {
		return errors.New("node index must start from 1")
	}
	if c.Party.MatchmakingDuration <= 0 {
		return errors.New("matchmaking duration must be positive")
	}
	if c.Party.DiscoveryInterval <= 0 {
		return errors.New("discovery interval must be positive")
	}
	if c.Transport.Kind == TransportEtcd && len(c.Transport.Etcd.Endpoints) == 0 {
		return errors.New("etcd transport needs at least one endpoint")
	}
	return nil
}
