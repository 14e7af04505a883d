package gateway

import "time"

const (
	DefaultSendBuffer     = 256
	DefaultMaxMessageSize = 4096

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Config sizes the per connection buffers
type Config struct {
	SendBuffer     int   `env:"WS_SEND_BUFFER" envDefault:"256"`
	MaxMessageSize int64 `env:"WS_MAX_MESSAGE_SIZE" envDefault:"4096"`
}

func (c Config) sanitize() Config {
	if c.SendBuffer <= 0 {
		c.SendBuffer = DefaultSendBuffer
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	return c
}
