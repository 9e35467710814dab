package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"SignalPulse/pkg/util"
)

type Config struct {
	Environment  string             `yaml:"environment" default:"development" validate:"required"`
	Log          LogConfig          `yaml:"log"`
	Server       ServerConfig       `yaml:"server"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Instruments  []InstrumentConfig `yaml:"instruments" validate:"required,min=1,dive"`
	Sources      []SourceConfig     `yaml:"sources" validate:"required,min=1,dive"`
	Engine       EngineConfig       `yaml:"engine"`
	Indicators   IndicatorConfig    `yaml:"indicators"`
	Risk         RiskConfig         `yaml:"risk"`
	Learning     LearningConfig     `yaml:"learning"`
	WeightsStore WeightsStoreConfig `yaml:"weights_store"`
	Dispatcher   DispatcherConfig   `yaml:"dispatcher"`
	Journal      JournalConfig      `yaml:"journal"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	ClickHouse   ClickHouseConfig   `yaml:"clickhouse"`
	Redis        RedisConfig        `yaml:"redis"`
	SQLite       SQLiteConfig       `yaml:"sqlite"`
}

type LogConfig struct {
	Level      string        `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format     string        `yaml:"format" default:"json" validate:"oneof=json console"`
	Output     string        `yaml:"output" default:"stdout"`
	Collect    bool          `yaml:"collect"`
	Topic      string        `yaml:"topic" default:"signalpulse.logs"`
	FlushEvery time.Duration `yaml:"flush_every" default:"30s"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	AllowOrigins    []string      `yaml:"allow_origins"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" default:"/metrics"`
}

type InstrumentConfig struct {
	ID        string            `yaml:"id" validate:"required"`
	Name      string            `yaml:"name"`
	Category  string            `yaml:"category" validate:"required,oneof=crypto metal forex"`
	Source    string            `yaml:"source" validate:"required"`
	Fallback  string            `yaml:"fallback"`
	Precision int32             `yaml:"precision" default:"4" validate:"gte=0,lte=12"`
	Symbols   map[string]string `yaml:"symbols"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" default:"1" validate:"gt=0"`
	Burst int     `yaml:"burst" default:"1" validate:"gte=1"`
}

type SourceConfig struct {
	Name         string          `yaml:"name" validate:"required"`
	Kind         string          `yaml:"kind" validate:"required,oneof=binance coingecko exchangerate twelvedata finnhub"`
	BaseURL      string          `yaml:"base_url"`
	APIKey       string          `yaml:"api_key"`
	PollInterval time.Duration   `yaml:"poll_interval" default:"10s"`
	Timeout      time.Duration   `yaml:"timeout" default:"10s"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
	CacheTTL     time.Duration   `yaml:"cache_ttl" default:"5s"`
}

type LockConfig struct {
	Min time.Duration `yaml:"min" default:"5m"`
	Max time.Duration `yaml:"max" default:"30m"`
}

type BackoffConfig struct {
	Max                    time.Duration `yaml:"max" default:"5m"`
	RateLimitMultiplier    float64       `yaml:"rate_limit_multiplier" default:"2"`
	MaxRateLimitMultiplier float64       `yaml:"max_rate_limit_multiplier" default:"16"`
	Jitter                 float64       `yaml:"jitter" default:"0.1" validate:"gte=0,lt=1"`
}

type EngineConfig struct {
	WindowSize          int           `yaml:"window_size" default:"200" validate:"gte=30"`
	EvaluationInterval  time.Duration `yaml:"evaluation_interval" default:"5s"`
	OutcomeInterval     time.Duration `yaml:"outcome_interval" default:"1s"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold" default:"80" validate:"gt=0,lte=100"`
	StabilityThreshold  float64       `yaml:"stability_threshold" default:"70" validate:"gt=0,lte=100"`
	StabilityCycles     int           `yaml:"stability_cycles" default:"5" validate:"gte=1"`
	Lock                LockConfig    `yaml:"lock"`
	DegradedAfter       int           `yaml:"degraded_after" default:"3" validate:"gte=1"`
	Backoff             BackoffConfig `yaml:"backoff"`
	InconclusiveBand    float64       `yaml:"inconclusive_band" default:"0.1" validate:"gte=0"`
	EvalParallelism     int           `yaml:"eval_parallelism" default:"4" validate:"gte=1"`
	MinQuoteInterval    time.Duration `yaml:"min_quote_interval"`
	StatusSchedule      string        `yaml:"status_schedule" default:"*/30 * * * * *"`
}

type IndicatorConfig struct {
	RSIPeriod        int     `yaml:"rsi_period" default:"14" validate:"gte=2"`
	RSIOversold      float64 `yaml:"rsi_oversold" default:"30"`
	RSIOverbought    float64 `yaml:"rsi_overbought" default:"70"`
	MACDFast         int     `yaml:"macd_fast" default:"12" validate:"gte=2"`
	MACDSlow         int     `yaml:"macd_slow" default:"26" validate:"gte=3"`
	MACDSignal       int     `yaml:"macd_signal" default:"9" validate:"gte=2"`
	BollingerPeriod  int     `yaml:"bollinger_period" default:"20" validate:"gte=2"`
	BollingerStdDev  float64 `yaml:"bollinger_stddev" default:"2" validate:"gt=0"`
	StochasticPeriod int     `yaml:"stochastic_period" default:"14" validate:"gte=2"`
	StochasticSmooth int     `yaml:"stochastic_smooth" default:"3" validate:"gte=1"`
	WilliamsPeriod   int     `yaml:"williams_period" default:"14" validate:"gte=2"`
}

// RiskBand holds percentage offsets from entry price.
type RiskBand struct {
	StopLossPct   float64 `yaml:"stop_loss_pct" validate:"gt=0"`
	TakeProfitPct float64 `yaml:"take_profit_pct" validate:"gt=0"`
}

type RiskConfig struct {
	Crypto RiskBand `yaml:"crypto" default:"{\"StopLossPct\":2,\"TakeProfitPct\":4}"`
	Metal  RiskBand `yaml:"metal" default:"{\"StopLossPct\":2.5,\"TakeProfitPct\":5}"`
	Forex  RiskBand `yaml:"forex" default:"{\"StopLossPct\":3,\"TakeProfitPct\":6}"`
}

type LearningConfig struct {
	LearningRate   float64            `yaml:"learning_rate" default:"0.02" validate:"gt=0,lt=1"`
	WeightFloor    float64            `yaml:"weight_floor" default:"0.01" validate:"gt=0,lt=0.2"`
	ThresholdStep  float64            `yaml:"threshold_step" default:"1" validate:"gte=0"`
	ThresholdMin   float64            `yaml:"threshold_min" default:"80" validate:"gt=0,lte=100"`
	ThresholdMax   float64            `yaml:"threshold_max" default:"95" validate:"gt=0,lte=100"`
	InitialWeights map[string]float64 `yaml:"initial_weights"`
	Checkpoint     string             `yaml:"checkpoint" default:"@every 1m"`
}

type WeightsStoreConfig struct {
	Type string `yaml:"type" default:"memory" validate:"oneof=memory redis sqlite"`
	Key  string `yaml:"key" default:"weights"`
}

type DispatcherConfig struct {
	QueueSize int `yaml:"queue_size" default:"256" validate:"gte=1"`
}

type JournalConfig struct {
	Backend  string        `yaml:"backend" default:"memory" validate:"oneof=memory kafka clickhouse"`
	Consume  bool          `yaml:"consume"`
	TTLDays  int           `yaml:"ttl_days" default:"30" validate:"gte=1"`
	Capacity int           `yaml:"capacity" default:"1000" validate:"gte=1"`
	BatchMax int           `yaml:"batch_max" default:"100" validate:"gte=1"`
	Flush    time.Duration `yaml:"flush" default:"1s"`
}

type KafkaProducerConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" default:"5"`
	Linger       time.Duration `yaml:"linger" default:"10ms"`
	BatchSize    int           `yaml:"batch_size" default:"100"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
}

type KafkaConsumerConfig struct {
	GroupID    string        `yaml:"group_id" default:"signalpulse-journal"`
	Workers    int           `yaml:"workers" default:"2"`
	RetryMax   int           `yaml:"retry_max" default:"3"`
	BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
	BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
	DLQTopic   string        `yaml:"dlq_topic"`
}

type KafkaConfig struct {
	Brokers      []string            `yaml:"brokers"`
	Topic        string              `yaml:"topic" default:"signalpulse.events"`
	RequiredAcks int                 `yaml:"required_acks" default:"-1"`
	Compression  string              `yaml:"compression" default:"snappy"`
	Producer     KafkaProducerConfig `yaml:"producer"`
	Consumer     KafkaConsumerConfig `yaml:"consumer"`
}

type ClickHouseConfig struct {
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"signalpulse"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type SQLiteConfig struct {
	Path string `yaml:"path" default:"data/signalpulse.db"`
}

var validate = validator.New()

// Load reads a YAML configuration file, applies defaults and validates it.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes raw YAML into a validated Config.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.finalize(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) finalize() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("apply defaults: %w", err)
	}
	for i := range c.Instruments {
		if c.Instruments[i].Name == "" {
			c.Instruments[i].Name = c.Instruments[i].ID
		}
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	c.Server.Port = util.ParseIntDefault(getenv("HTTP_PORT"), c.Server.Port)
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitCSV(v)
	}
	if v := getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	c.Engine.EvaluationInterval = util.ParseDurationDefault(getenv("EVAL_INTERVAL"), c.Engine.EvaluationInterval)
	c.Engine.ConfidenceThreshold = util.ParseFloatDefault(getenv("CONFIDENCE_THRESHOLD"), c.Engine.ConfidenceThreshold)
	for i := range c.Sources {
		switch c.Sources[i].Kind {
		case "finnhub":
			if v := getenv("FINNHUB_API_KEY"); v != "" {
				c.Sources[i].APIKey = v
			}
		case "twelvedata":
			if v := getenv("TWELVEDATA_API_KEY"); v != "" {
				c.Sources[i].APIKey = v
			}
		}
	}
}

// Validate checks structural tags and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	sources := make(map[string]SourceConfig, len(c.Sources))
	for _, s := range c.Sources {
		if _, dup := sources[s.Name]; dup {
			return fmt.Errorf("sources: duplicate name %q", s.Name)
		}
		if (s.Kind == "twelvedata" || s.Kind == "finnhub") && s.APIKey == "" {
			return fmt.Errorf("sources.%s: api_key is required for %s", s.Name, s.Kind)
		}
		sources[s.Name] = s
	}

	seen := make(map[string]bool, len(c.Instruments))
	for _, in := range c.Instruments {
		if seen[in.ID] {
			return fmt.Errorf("instruments: duplicate id %q", in.ID)
		}
		seen[in.ID] = true
		if _, ok := sources[in.Source]; !ok {
			return fmt.Errorf("instruments.%s: unknown source %q", in.ID, in.Source)
		}
		if in.Fallback != "" {
			if _, ok := sources[in.Fallback]; !ok {
				return fmt.Errorf("instruments.%s: unknown fallback %q", in.ID, in.Fallback)
			}
			if in.Fallback == in.Source {
				return fmt.Errorf("instruments.%s: fallback equals source", in.ID)
			}
		}
	}

	e := c.Engine
	if e.Lock.Min <= 0 || e.Lock.Max < e.Lock.Min {
		return errors.New("engine.lock: require 0 < min <= max")
	}
	if e.EvaluationInterval <= 0 || e.OutcomeInterval <= 0 {
		return errors.New("engine: intervals must be positive")
	}
	if e.Backoff.RateLimitMultiplier < 1 || e.Backoff.MaxRateLimitMultiplier < e.Backoff.RateLimitMultiplier {
		return errors.New("engine.backoff: require 1 <= rate_limit_multiplier <= max_rate_limit_multiplier")
	}

	ind := c.Indicators
	if ind.MACDFast >= ind.MACDSlow {
		return errors.New("indicators: macd_fast must be below macd_slow")
	}
	if ind.RSIOversold <= 0 || ind.RSIOverbought >= 100 || ind.RSIOversold >= ind.RSIOverbought {
		return errors.New("indicators: require 0 < rsi_oversold < rsi_overbought < 100")
	}

	l := c.Learning
	if l.ThresholdMin > l.ThresholdMax {
		return errors.New("learning: threshold_min exceeds threshold_max")
	}
	for name, w := range l.InitialWeights {
		if w < 0 {
			return fmt.Errorf("learning.initial_weights.%s: negative weight", name)
		}
	}

	if c.Journal.Backend == "kafka" || c.Log.Collect {
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("kafka.brokers required by journal.backend=kafka or log.collect")
		}
	}
	if c.Journal.Consume && c.Journal.Backend != "kafka" {
		return errors.New("journal.consume requires journal.backend=kafka")
	}
	return nil
}

// Source returns the source definition by name.
func (c *Config) Source(name string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return SourceConfig{}, false
}
