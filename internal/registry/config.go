package registry

import "time"

// EvictionConfig controls idle-room eviction. A zero IdleTTL keeps every room forever.
type EvictionConfig struct {
	IdleTTL  time.Duration `env:"ROOM_IDLE_TTL" envDefault:"0s"`
	Interval time.Duration `env:"ROOM_EVICT_INTERVAL" envDefault:"1m"`
}

func (c EvictionConfig) Enabled() bool {
	return c.IdleTTL > 0 && c.Interval > 0
}
