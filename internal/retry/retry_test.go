package retry

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"
)

func fast() *Config {
	return &Config{
		Attempts:     3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
		Transient:    []string{"connection refused"},
	}
}

type flakyPinger struct {
	failures int
	err      error
	calls    int
}

func (p *flakyPinger) PingContext(context.Context) error {
	p.calls++
	if p.calls <= p.failures {
		if p.err != nil {
			return p.err
		}
		return errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")
	}
	return nil
}

func TestWithDefaults(t *testing.T) {
	var nilCfg *Config
	if got := nilCfg.withDefaults(); got.Attempts != Default().Attempts {
		t.Errorf("nil config attempts = %d", got.Attempts)
	}
	got := (&Config{Attempts: 2}).withDefaults()
	if got.Attempts != 2 || got.InitialDelay != 200*time.Millisecond || got.Multiplier != 2 || len(got.Transient) == 0 {
		t.Errorf("withDefaults() = %+v", got)
	}
}

func TestTransient(t *testing.T) {
	c := Default().withDefaults()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"refused", errors.New("dial tcp: Connection Refused"), true},
		{"postgres starting", errors.New("FATAL: the database system is starting up (SQLSTATE 57P03)"), true},
		{"sqlite locked", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"net op error", &net.OpError{Op: "dial", Err: errors.New("no route to host")}, true},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"auth", errors.New("password authentication failed for user"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.transient(tt.err); got != tt.want {
				t.Errorf("transient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDelay(t *testing.T) {
	c := Config{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}
	want := []time.Duration{100, 200, 400, 800, 1000, 1000}
	for i, w := range want {
		if got := c.delay(i + 1); got != w*time.Millisecond {
			t.Errorf("delay(%d) = %v, want %v", i+1, got, w*time.Millisecond)
		}
	}
}

func TestPing(t *testing.T) {
	p := &flakyPinger{failures: 2}
	if err := Ping(context.Background(), fast(), p); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if p.calls != 3 {
		t.Errorf("calls = %d, want 3", p.calls)
	}
}

func TestPing_GivesUp(t *testing.T) {
	p := &flakyPinger{failures: 10}
	err := Ping(context.Background(), fast(), p)
	if err == nil || !strings.Contains(err.Error(), "after 3 attempts") {
		t.Fatalf("Ping() error = %v", err)
	}
	if p.calls != 3 {
		t.Errorf("calls = %d, want 3", p.calls)
	}
}

func TestPing_PermanentError(t *testing.T) {
	cause := errors.New("password authentication failed")
	p := &flakyPinger{failures: 10, err: cause}
	if err := Ping(context.Background(), fast(), p); !errors.Is(err, cause) {
		t.Fatalf("Ping() error = %v, want %v", err, cause)
	}
	if p.calls != 1 {
		t.Errorf("calls = %d, want 1", p.calls)
	}
}

func TestPing_ContextCanceled(t *testing.T) {
	cfg := fast()
	cfg.InitialDelay = 50 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	p := pingFunc(func(context.Context) error {
		cancel()
		return errors.New("connection refused")
	})
	if err := Ping(ctx, cfg, p); !errors.Is(err, context.Canceled) {
		t.Errorf("Ping() error = %v, want context.Canceled", err)
	}
}

type pingFunc func(context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }
