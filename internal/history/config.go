package history

import "time"

const (
	DefaultLimit  = 100
	DefaultMaxAge = 30 * 24 * time.Hour
)

// Config bounds every history read. ImportPath names a JSON file of messages
// copied into the store at startup.
type Config struct {
	Limit      int           `env:"HISTORY_LIMIT" envDefault:"100"`
	MaxAge     time.Duration `env:"HISTORY_MAX_AGE" envDefault:"720h"`
	ImportPath string        `env:"HISTORY_IMPORT"`
}

func (c Config) sanitize() Config {
	if c.Limit <= 0 {
		c.Limit = DefaultLimit
	}
	if c.MaxAge <= 0 {
		c.MaxAge = DefaultMaxAge
	}
	return c
}
