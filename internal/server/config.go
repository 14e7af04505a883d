package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	defaultHandlerTimeout = 10 * time.Second
	defaultTimeoutMessage = `{"error":"request timed out"}`
	shutdownTimeout       = 15 * time.Second
	maxBodyBytes          = 1 << 20
)

type Option interface {
	apply(*config)
}

type optionFunc func(c *config)

func (f optionFunc) apply(c *config) { f(c) }

type routeKind int

const (
	routeGet routeKind = iota
	routePost
	routeStream
)

type route struct {
	kind    routeKind
	handler http.Handler
}

// config defines fields used for configuring Server instance
type config struct {
	httpServer     *http.Server
	routes         map[string]route
	handlerTimeout time.Duration
	timeoutMessage string
	afterShutdown  []func()
	tasks          []func(ctx context.Context) error
}

// EnvConfig defines fields used for parsing from environment variables
type EnvConfig struct {
	Host           string        `env:"HOST" envDefault:"0.0.0.0"`
	Port           uint16        `env:"PORT" envDefault:"9000"`
	ReadTimeout    time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	HandlerTimeout time.Duration `env:"HTTP_HANDLER_TIMEOUT" envDefault:"10s"`
}

// Addr returns the listen address in host:port form
func (e EnvConfig) Addr() string {
	return e.Host + ":" + strconv.FormatUint(uint64(e.Port), 10)
}

// WithEnvConfig enables processing exported EnvConfig struct to acts as a source of config parameters for http.Server
func WithEnvConfig(cfg EnvConfig) Option {
	return optionFunc(func(c *config) {
		c.httpServer.Addr = cfg.Addr()
		if cfg.ReadTimeout > 0 {
			c.httpServer.ReadTimeout = cfg.ReadTimeout
		}
		if cfg.HandlerTimeout > 0 {
			c.handlerTimeout = cfg.HandlerTimeout
		}
	})
}

// ReadTimeout sets read timeout for http.Server
func ReadTimeout(d time.Duration) Option {
	return optionFunc(func(c *config) {
		c.httpServer.ReadTimeout = d
	})
}

// TimeoutHandler sets the duration and body used to wrap POST handlers in http.TimeoutHandler.
// Streaming routes are never wrapped.
func TimeoutHandler(d time.Duration, msg string) Option {
	return optionFunc(func(c *config) {
		c.handlerTimeout = d
		c.timeoutMessage = msg
	})
}

// WithWebsocket serves h on pattern without body checks or timeouts
func WithWebsocket(pattern string, h http.Handler) Option {
	return optionFunc(func(c *config) {
		c.routes[pattern] = route{kind: routeStream, handler: h}
	})
}

// RegisterAfterShutdown registers a function to call after http.Server shutdown
// f will not be called in separated goroutine
func RegisterAfterShutdown(f func()) Option {
	return optionFunc(func(c *config) {
		c.afterShutdown = append(c.afterShutdown, f)
	})
}

// RunWhileServing registers a task started with the HTTP server. Its context is cancelled on
// shutdown and a returned error stops the server.
func RunWhileServing(task func(ctx context.Context) error) Option {
	return optionFunc(func(c *config) {
		c.tasks = append(c.tasks, task)
	})
}

// applyEnforcePostJson wraps each POST handler with enforcePostJson middleware
func applyEnforcePostJson() Option {
	return optionFunc(func(c *config) {
		for pattern, rt := range c.routes {
			if rt.kind == routePost {
				rt.handler = enforcePostJson(rt.handler)
				c.routes[pattern] = rt
			}
		}
	})
}

// applyTimeout wraps each POST handler in http.TimeoutHandler
func applyTimeout() Option {
	return optionFunc(func(c *config) {
		if c.handlerTimeout <= 0 {
			return
		}
		for pattern, rt := range c.routes {
			if rt.kind == routePost {
				rt.handler = http.TimeoutHandler(rt.handler, c.handlerTimeout, c.timeoutMessage)
				c.routes[pattern] = rt
			}
		}
	})
}

// applyLog wraps each handler with log middleware
func applyLog(logger *zap.Logger) Option {
	return optionFunc(func(c *config) {
		for pattern, rt := range c.routes {
			rt.handler = log(rt.handler, logger)
			c.routes[pattern] = rt
		}
	})
}

// registerHandlers iterates over the routes and registers each handler for newly initialized http.ServeMux
// that http.ServeMux is used as a http.Handler for http.Server in config struct
func registerHandlers() Option {
	return optionFunc(func(c *config) {
		mux := http.NewServeMux()
		for pattern, rt := range c.routes {
			mux.Handle(pattern, rt.handler)
		}
		c.httpServer.Handler = mux
	})
}
