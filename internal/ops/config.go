// Package ops loads the strategy daemon configuration.
package ops

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"calc/internal/errors"
	"calc/internal/recorder"
	"calc/pkg/conn"
	"calc/pkg/exception"
)

const (
	defaultRedisPrefix   = "calc:triggers"
	defaultExchange      = "calc"
	defaultRequestQueue  = "calc.requests"
	defaultResponseKey   = "calc.responses"
	defaultPrefetch      = 16
	defaultQueueCapacity = 1024
	defaultAppName       = "calc.strategyd"
)

// StoreDriver selects where strategy records live.
type StoreDriver string

const (
	StoreMemory   StoreDriver = "memory"
	StorePostgres StoreDriver = "postgres"
)

// FileConfig mirrors the YAML config layout.
type FileConfig struct {
	Store     StoreConfig      `yaml:"store"`
	Redis     *RedisConfig     `yaml:"redis"`
	AMQP      *AMQPConfig      `yaml:"amqp"`
	Journal   *JournalConfig   `yaml:"journal"`
	Pyroscope *PyroscopeConfig `yaml:"pyroscope"`
	Scheduler string           `yaml:"scheduler"`
	Manager   string           `yaml:"manager"`
	World     string           `yaml:"world"`
	Queue     int              `yaml:"queue"`
}

// StoreConfig selects and configures the record store.
type StoreConfig struct {
	Driver   StoreDriver         `yaml:"driver"`
	Postgres conn.PostgresOption `yaml:"postgres"`
	Snapshot string              `yaml:"snapshot"`
}

// RedisConfig configures the trigger store.
type RedisConfig struct {
	conn.RedisOption `yaml:",inline"`
}

// AMQPConfig configures the request relay.
type AMQPConfig struct {
	conn.AMQPOption `yaml:",inline"`
	Exchange        string `yaml:"exchange"`
	RequestQueue    string `yaml:"requestQueue"`
	ResponseKey     string `yaml:"responseKey"`
}

// JournalConfig configures the invocation journal.
type JournalConfig struct {
	Dir             string        `yaml:"dir"`
	SegmentMaxBytes int64         `yaml:"segmentMaxBytes"`
	FlushInterval   time.Duration `yaml:"flushInterval"`
	SyncInterval    time.Duration `yaml:"syncInterval"`
}

// PyroscopeConfig enables continuous profiling.
type PyroscopeConfig struct {
	Address     string            `yaml:"address"`
	Application string            `yaml:"application"`
	Tags        map[string]string `yaml:"tags"`
}

// Loaded is the resolved configuration ready for use. Optional sections are
// nil when absent from the file.
type Loaded struct {
	Store     StoreConfig
	Redis     *RedisConfig
	AMQP      *AMQPConfig
	Journal   *recorder.Config
	Pyroscope *PyroscopeConfig
	Scheduler string
	Manager   string
	World     string
	Queue     int
}

// Load reads a YAML config file and resolves it.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, errors.Wrapf(err, "read config %s", path)
	}
	return Parse(data)
}

// Parse resolves YAML config content.
func Parse(data []byte) (Loaded, error) {
	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, errors.Wrap(err, "decode config")
	}
	return resolve(cfg)
}

func resolve(cfg FileConfig) (Loaded, error) {
	store, err := resolveStore(cfg.Store)
	if err != nil {
		return Loaded{}, err
	}
	if cfg.Queue < 0 {
		return Loaded{}, errors.Wrap(exception.ErrInvalidArgument, "queue must be >= 0")
	}
	if cfg.Queue == 0 {
		cfg.Queue = defaultQueueCapacity
	}

	out := Loaded{
		Store:     store,
		Scheduler: cfg.Scheduler,
		Manager:   cfg.Manager,
		World:     cfg.World,
		Queue:     cfg.Queue,
	}

	if cfg.Redis != nil {
		if cfg.Redis.Address == "" {
			return Loaded{}, errors.Wrap(exception.ErrEmptyConnection, "redis address")
		}
		if cfg.Redis.Prefix == "" {
			cfg.Redis.Prefix = defaultRedisPrefix
		}
		if cfg.Scheduler == "" {
			return Loaded{}, errors.Wrap(exception.ErrInvalidArgument, "redis trigger store needs a scheduler address")
		}
		out.Redis = cfg.Redis
	}

	if cfg.AMQP != nil {
		out.AMQP, err = resolveAMQP(*cfg.AMQP)
		if err != nil {
			return Loaded{}, err
		}
	}

	if cfg.Journal != nil {
		journal := recorder.DefaultConfig(cfg.Journal.Dir)
		if cfg.Journal.SegmentMaxBytes != 0 {
			journal.SegmentMaxBytes = cfg.Journal.SegmentMaxBytes
		}
		if cfg.Journal.FlushInterval != 0 {
			journal.FlushInterval = cfg.Journal.FlushInterval
		}
		journal.SyncInterval = cfg.Journal.SyncInterval
		if err := journal.Validate(); err != nil {
			return Loaded{}, err
		}
		out.Journal = &journal
	}

	if cfg.Pyroscope != nil {
		if cfg.Pyroscope.Address == "" {
			return Loaded{}, errors.Wrap(exception.ErrEmptyConnection, "pyroscope address")
		}
		if cfg.Pyroscope.Application == "" {
			cfg.Pyroscope.Application = defaultAppName
		}
		out.Pyroscope = cfg.Pyroscope
	}
	return out, nil
}

func resolveStore(cfg StoreConfig) (StoreConfig, error) {
	switch cfg.Driver {
	case "":
		cfg.Driver = StoreMemory
	case StoreMemory, StorePostgres:
	default:
		return cfg, errors.Wrapf(exception.ErrInvalidArgument, "store driver %q", cfg.Driver)
	}
	if cfg.Driver == StorePostgres && cfg.Postgres.ConnString == "" && cfg.Postgres.Database == "" {
		return cfg, errors.Wrap(exception.ErrInvalidArgument, "postgres store needs a database or dsn")
	}
	return cfg, nil
}

func resolveAMQP(cfg AMQPConfig) (*AMQPConfig, error) {
	if cfg.URL == "" {
		return nil, errors.Wrap(exception.ErrEmptyConnection, "amqp url")
	}
	if cfg.Exchange == "" {
		cfg.Exchange = defaultExchange
	}
	if cfg.RequestQueue == "" {
		cfg.RequestQueue = defaultRequestQueue
	}
	if cfg.ResponseKey == "" {
		cfg.ResponseKey = defaultResponseKey
	}
	if cfg.Prefetch == 0 {
		cfg.Prefetch = defaultPrefetch
	}
	return &cfg, nil
}
