package dispatcher_config

import (
	"time"

	"github.com/NordCoder/Renewly/internal/obs"
	pg "github.com/NordCoder/Renewly/internal/repository/postgres"
)

type App struct {
	Name    string `mapstructure:"name" validate:"required"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Server struct {
	HTTPAddr         string        `mapstructure:"http_addr" validate:"required"`
	MetricsAddr      string        `mapstructure:"metrics_addr" validate:"required"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout  time.Duration `mapstructure:"graceful_timeout"`
	TriggerTokenHash string        `mapstructure:"trigger_token_hash"`
	TriggerRPM       int           `mapstructure:"trigger_rpm" validate:"gte=0"`
}

type OTEL struct {
	Enable       bool    `mapstructure:"enable"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio" validate:"gte=0,lte=1"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// VAPID keys accept raw base64url material or PEM documents.
type VAPID struct {
	PublicKey  string `mapstructure:"public_key"`
	PrivateKey string `mapstructure:"private_key" validate:"required"`
	Subscriber string `mapstructure:"subscriber" validate:"required"`
}

type Breaker struct {
	FailureThreshold uint32        `mapstructure:"failure_threshold" validate:"gte=1"`
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

type Push struct {
	Timeout    time.Duration `mapstructure:"timeout" validate:"gt=0"`
	TTL        time.Duration `mapstructure:"ttl"`
	Urgency    string        `mapstructure:"urgency" validate:"oneof=very-low low normal high"`
	Workers    int           `mapstructure:"workers" validate:"gte=1"`
	RatePerSec float64       `mapstructure:"rate_per_sec" validate:"gte=0"`
	Burst      int           `mapstructure:"burst" validate:"gte=1"`
	VerifyTLS  bool          `mapstructure:"verify_tls"`
	Breaker    Breaker       `mapstructure:"breaker"`
}

type Dispatch struct {
	Enable       bool          `mapstructure:"enable"`
	Tick         time.Duration `mapstructure:"tick" validate:"gt=0"`
	RunDeadline  time.Duration `mapstructure:"run_deadline" validate:"gt=0"`
	Timezone     string        `mapstructure:"timezone" validate:"required"`
	DefaultDays  []int         `mapstructure:"default_days" validate:"min=1,dive,gte=0"`
	FetchWorkers int           `mapstructure:"fetch_workers" validate:"gte=1"`
	AppURL       string        `mapstructure:"app_url"`
}

type Events struct {
	Enable        bool          `mapstructure:"enable"`
	Brokers       []string      `mapstructure:"brokers" validate:"required_if=Enable true"`
	Topic         string        `mapstructure:"topic" validate:"required_if=Enable true"`
	Workers       int           `mapstructure:"workers" validate:"gte=1"`
	BatchSize     int           `mapstructure:"batch_size" validate:"gte=1"`
	WaitTime      time.Duration `mapstructure:"wait_time" validate:"gt=0"`
	InProgressTTL time.Duration `mapstructure:"in_progress_ttl" validate:"gt=0"`
	Retention     time.Duration `mapstructure:"retention" validate:"gte=0"`
}

type Lock struct {
	Enable   bool          `mapstructure:"enable"`
	Addr     string        `mapstructure:"addr" validate:"required_if=Enable true"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Key      string        `mapstructure:"key"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type Config struct {
	App      App       `mapstructure:"app"`
	Server   Server    `mapstructure:"server"`
	DB       pg.Config `mapstructure:"db"`
	OTEL     OTEL      `mapstructure:"otel"`
	Log      Log       `mapstructure:"log"`
	VAPID    VAPID     `mapstructure:"vapid"`
	Push     Push      `mapstructure:"push"`
	Dispatch Dispatch  `mapstructure:"dispatch"`
	Events   Events    `mapstructure:"events"`
	Lock     Lock      `mapstructure:"lock"`
}

func (c *Config) AsLoggerConfig() obs.LogConfig {
	return obs.LogConfig{
		Level:  c.Log.Level,
		Pretty: c.Log.Pretty,
		App:    c.App.Name,
		Env:    c.App.Env,
		Ver:    c.App.Version,
	}
}

func (c *Config) AsOTELConfig() obs.OTELConfig {
	name := c.OTEL.ServiceName
	if name == "" {
		name = c.App.Name
	}
	return obs.OTELConfig{
		Enable:      c.OTEL.Enable,
		Endpoint:    c.OTEL.OTLPEndpoint,
		ServiceName: name,
		Version:     c.App.Version,
		Env:         c.App.Env,
		SampleRatio: c.OTEL.SampleRatio,
	}
}

// Location resolves Dispatch.Timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Dispatch.Timezone)
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
