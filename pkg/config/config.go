package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Feed struct {
		// Mode selects the tick source: "websocket" or "kafka".
		Mode           string        `yaml:"mode"`
		WebSocketURL   string        `yaml:"websocket_url"`
		Symbols        []string      `yaml:"symbols"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
		MaxRPS         int           `yaml:"max_rps"`
		BufferSize     int           `yaml:"buffer_size"`
	} `yaml:"feed"`
	History struct {
		Capacity int `yaml:"capacity"`
	} `yaml:"history"`
	Indicators struct {
		Interval          time.Duration `yaml:"interval"`
		RSIPeriods        []int         `yaml:"rsi_periods"`
		MAPeriods         []int         `yaml:"ma_periods"`
		RSIOverbought     float64       `yaml:"rsi_overbought"`
		RSIOversold       float64       `yaml:"rsi_oversold"`
		RSIBroadcastDelta float64       `yaml:"rsi_broadcast_delta"`
		MABroadcastDelta  float64       `yaml:"ma_broadcast_delta"`
	} `yaml:"indicators"`
	Aggregator struct {
		Assets          []string      `yaml:"assets"`
		Interval        time.Duration `yaml:"interval"`
		PerpTenorFactor float64       `yaml:"perp_tenor_factor"`
	} `yaml:"aggregator"`
	Exchanges map[string]ExchangeConfig `yaml:"exchanges"`
	Kafka     struct {
		Brokers        []string `yaml:"brokers"`
		CompositeTopic string   `yaml:"composite_topic"`
		TicksTopic     string   `yaml:"ticks_topic"`
		RequiredAcks   int      `yaml:"required_acks"`
		Compression    string   `yaml:"compression"`
		Producer       struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		BackfillTable    string        `yaml:"backfill_table"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
}

// ExchangeConfig carries one venue's endpoints, limits, and trust prior.
type ExchangeConfig struct {
	BaseURL         string                  `yaml:"base_url"`
	DerivativeURL   string                  `yaml:"derivative_url"`
	ConfidencePrior float64                 `yaml:"confidence_prior"`
	Quota           int                     `yaml:"quota"`
	Interval        time.Duration           `yaml:"interval"`
	MaxConcurrent   int                     `yaml:"max_concurrent"`
	MaxQueueDepth   int                     `yaml:"max_queue_depth"`
	RequestTimeout  time.Duration           `yaml:"request_timeout"`
	Assets          map[string]AssetSymbols `yaml:"assets"`
}

// AssetSymbols maps a canonical asset to venue instrument identifiers.
type AssetSymbols struct {
	Spot       string `yaml:"spot"`
	Derivative string `yaml:"derivative"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Validate required fields
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables
	if v := os.Getenv("FEED_MODE"); v != "" {
		c.Feed.Mode = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Feed.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("ASSETS"); v != "" {
		c.Aggregator.Assets = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_COMPOSITE_TOPIC"); v != "" {
		c.Kafka.CompositeTopic = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
		c.Redis.Enabled = true
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Feed.Mode != "websocket" && c.Feed.Mode != "kafka" {
		return fmt.Errorf("feed.mode must be 'websocket' or 'kafka', got '%s'", c.Feed.Mode)
	}
	if len(c.Feed.Symbols) == 0 {
		return fmt.Errorf("feed.symbols cannot be empty")
	}
	if c.Feed.Mode == "websocket" && c.Feed.WebSocketURL == "" {
		return fmt.Errorf("feed.websocket_url is required in websocket mode")
	}
	if c.Feed.Mode == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers are required in kafka mode")
	}
	if len(c.Aggregator.Assets) == 0 {
		return fmt.Errorf("aggregator.assets cannot be empty")
	}
	if len(c.Exchanges) == 0 {
		return fmt.Errorf("exchanges cannot be empty")
	}
	for name, ex := range c.Exchanges {
		if ex.BaseURL == "" {
			return fmt.Errorf("exchanges.%s.base_url is required", name)
		}
		if ex.ConfidencePrior <= 0 || ex.ConfidencePrior > 1 {
			return fmt.Errorf("exchanges.%s.confidence_prior must be in (0, 1]", name)
		}
	}
	return nil
}
