// Package retry waits for a freshly started database to answer before the
// first unit runs. Units themselves are never retried.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/loykin/migcheck/internal/common"
)

// Config controls how long Ping keeps trying.
type Config struct {
	Attempts     int           `mapstructure:"attempts" validate:"omitempty,min=1"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	Multiplier   float64       `mapstructure:"multiplier" validate:"omitempty,gte=1"`
	// Transient lists lower-case error fragments worth another attempt.
	Transient []string `mapstructure:"transient"`
}

// Default is used when the store config carries no retry section.
func Default() *Config {
	return &Config{
		Attempts:     6,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
		Transient: []string{
			"connection refused",
			"connection reset",
			"the database system is starting up",
			"database is locked",
			"broken pipe",
			"eof",
		},
	}
}

// withDefaults fills zero fields from Default.
func (c *Config) withDefaults() Config {
	d := Default()
	if c == nil {
		return *d
	}
	out := *c
	if out.Attempts <= 0 {
		out.Attempts = d.Attempts
	}
	if out.InitialDelay <= 0 {
		out.InitialDelay = d.InitialDelay
	}
	if out.MaxDelay <= 0 {
		out.MaxDelay = d.MaxDelay
	}
	if out.Multiplier < 1 {
		out.Multiplier = d.Multiplier
	}
	if out.Transient == nil {
		out.Transient = d.Transient
	}
	return out
}

// transient reports whether err may go away on its own.
func (c Config) transient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if pgconn.Timeout(err) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, frag := range c.Transient {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}

// delay returns the wait after the n-th failed attempt (1-based).
func (c Config) delay(n int) time.Duration {
	d := c.InitialDelay
	for i := 1; i < n; i++ {
		d = time.Duration(float64(d) * c.Multiplier)
		if d >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	return min(d, c.MaxDelay)
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Ping waits for p to answer. Non-transient errors return at once; after the
// last attempt the final error is wrapped with the attempt count.
func Ping(ctx context.Context, cfg *Config, p Pinger) error {
	c := cfg.withDefaults()
	logger := common.GetLogger().WithComponent("store")

	var err error
	for n := 1; n <= c.Attempts; n++ {
		if err = p.PingContext(ctx); err == nil {
			if n > 1 {
				logger.Info("database answered", "attempt", n)
			}
			return nil
		}
		if !c.transient(err) {
			return err
		}
		if n == c.Attempts {
			break
		}
		wait := c.delay(n)
		logger.Warn("database not ready, waiting", "error", err, "attempt", n, "of", c.Attempts, "wait", wait)
		select {
		case <-ctx.Done():
			return fmt.Errorf("gave up waiting for database: %w", ctx.Err())
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("database not ready after %d attempts: %w", c.Attempts, err)
}
