package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Tyrowin/wanderchat/internal/auth"
	"github.com/Tyrowin/wanderchat/internal/messaging"
	"github.com/Tyrowin/wanderchat/internal/metrics"
	"github.com/Tyrowin/wanderchat/internal/room"
	"github.com/Tyrowin/wanderchat/internal/store"
	"github.com/Tyrowin/wanderchat/internal/wsconn"
)

// Deps are the collaborators an App is built from.
type Deps struct {
	Users    store.UserStore
	Sessions store.SessionStore
	Logger   *zap.Logger
	// Registry receives the service collectors. A fresh registry is used when nil.
	Registry *prometheus.Registry
}

// App owns the two chat surfaces and everything the HTTP handlers need.
type App struct {
	cfg       Config
	log       *zap.Logger
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	resolver  *auth.Resolver
	auth      *auth.Handlers
	messaging *messaging.Service
	room      *room.Room
	origins   *originPolicy
	// upgrader enforces the origin allowlist on the authenticated surface.
	upgrader websocket.Upgrader
	// roomUpgrader admits any client, with or without an Origin header.
	roomUpgrader websocket.Upgrader

	mu       sync.Mutex
	stopping bool
	wg       sync.WaitGroup
}

// NewApp wires the resolver, REST handlers, messaging service and room.
func NewApp(cfg *Config, deps Deps) *App {
	c := sanitizeConfig(*cfg)
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	reg := deps.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := metrics.New(reg)

	a := &App{
		cfg:       c,
		log:       log,
		registry:  reg,
		metrics:   m,
		resolver:  auth.NewResolver(deps.Sessions, deps.Users, auth.ResolverConfig{CookieName: c.Session.CookieName, Secret: c.Session.Secret}, log.Named("auth")),
		messaging: messaging.NewService(log.Named("messaging"), m),
		room:      room.New(log.Named("room"), m),
		origins:   newOriginPolicy(c.AllowedOrigins, log),
	}
	a.auth = auth.NewHandlers(deps.Users, deps.Sessions, auth.SessionConfig{
		CookieName: c.Session.CookieName,
		Secret:     c.Session.Secret,
		TTL:        c.Session.TTL,
		Secure:     c.IsProduction(),
	}, log.Named("auth"))
	a.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     a.origins.CheckOrigin,
	}
	a.roomUpgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	return a
}

// Config returns the sanitized configuration.
func (a *App) Config() Config {
	return a.cfg
}

// Messaging returns the authenticated direct-messaging service.
func (a *App) Messaging() *messaging.Service {
	return a.messaging
}

// Room returns the unauthenticated broadcast room.
func (a *App) Room() *room.Room {
	return a.room
}

// Registry returns the metrics registry served at /metrics.
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

func (a *App) connOptions(surface string) wsconn.Options {
	return wsconn.Options{
		MaxMessageSize: a.cfg.MaxMessageSize,
		RateLimit: wsconn.RateLimit{
			Burst:          a.cfg.RateLimit.Burst,
			RefillInterval: a.cfg.RateLimit.RefillInterval,
		},
		OnRateLimited: func() { a.metrics.RateLimited(surface) },
	}
}

// acquire registers a connection that Shutdown must wait for. It fails once
// shutdown has begun; a successful acquire must be paired with release.
func (a *App) acquire() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopping {
		return false
	}
	a.wg.Add(1)
	return true
}

func (a *App) release() {
	a.wg.Done()
}

// Shutdown refuses new upgrades, closes every open socket on both surfaces and
// waits for their pumps to finish, or until the timeout is reached. Sockets
// admitted by handlers that were already past the upgrade are closed on the
// next sweep.
func (a *App) Shutdown(timeout time.Duration) error {
	a.log.Info("initiating websocket shutdown")

	a.mu.Lock()
	a.stopping = true
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	closed := a.closeAll()
	deadline := time.After(timeout)
	sweep := time.NewTicker(shutdownSweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-done:
			a.log.Info("websocket shutdown completed", zap.Int("closed", closed))
			return nil
		case <-sweep.C:
			closed += a.closeAll()
		case <-deadline:
			a.log.Warn("websocket shutdown timeout reached, some connections may still be open")
			return context.DeadlineExceeded
		}
	}
}

const shutdownSweepInterval = 50 * time.Millisecond

func (a *App) closeAll() int {
	return a.messaging.CloseAll() + a.room.CloseAll()
}
