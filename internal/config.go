package internal

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Host     string `env:"HOST,required=true"`
	Port     int    `env:"PORT,required=true"`
	GrpcPort int    `env:"GRPC_PORT,required=true"`
	LogLevel string `env:"LOG_LEVEL,required=true"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	LimitMessages  *int   `env:"LIMIT_MESSAGES"`

	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,required=true"`
	AckBufferSize        int           `env:"ACK_BUFFER_SIZE,required=true"`
	TelemetryBufferSize  int           `env:"TELEMETRY_BUFFER_SIZE,required=true"`
	WriteTimeout         time.Duration `env:"WRITE_TIMEOUT,required=true"`
	PingInterval         time.Duration `env:"PING_INTERVAL,required=true"`
	PongTimeout          time.Duration `env:"PONG_TIMEOUT,required=true"`
	RequestTimeout       time.Duration `env:"REQUEST_TIMEOUT,default=10s"`
	MaxFrameSize         int64         `env:"MAX_FRAME_SIZE,default=65536"`
	AllowedOrigins       string        `env:"ALLOWED_ORIGINS"`

	RestartInterval      time.Duration `env:"RESTART_INTERVAL,required=true"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,required=true"`
	LatencyThreshold     time.Duration `env:"LATENCY_THRESHOLD,default=1s"`
	LowCapacityThreshold int           `env:"LOW_CAPACITY_THRESHOLD,required=true"`
	MaxContentLength     int           `env:"MAX_CONTENT_LENGTH,required=true"`

	AuthSecret        string        `env:"AUTH_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,required=true"`
	RequireAuth       bool          `env:"REQUIRE_AUTH,default=false"`
}

// Validate checks what struct tags cannot express.
func (c Config) Validate() error {
	if c.PingInterval <= 0 || c.WriteTimeout <= 0 {
		return fmt.Errorf("PING_INTERVAL (%s) and WRITE_TIMEOUT (%s) must be positive", c.PingInterval, c.WriteTimeout)
	}
	if c.PongTimeout <= c.PingInterval {
		return fmt.Errorf("PONG_TIMEOUT (%s) must be longer than PING_INTERVAL (%s)", c.PongTimeout, c.PingInterval)
	}
	if c.ConnectionBufferSize <= 0 || c.AckBufferSize <= 0 || c.TelemetryBufferSize <= 0 {
		return fmt.Errorf("buffer sizes must be positive")
	}
	if c.LimitMessages != nil && *c.LimitMessages <= 0 {
		return fmt.Errorf("LIMIT_MESSAGES must be positive, got %d", *c.LimitMessages)
	}
	if len(c.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be at least 32 characters")
	}
	return nil
}

// Origins splits the comma separated ALLOWED_ORIGINS.
func (c Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
