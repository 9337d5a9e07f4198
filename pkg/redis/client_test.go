package redis

import (
	"testing"

	"github.com/osei-labs/marketplace-backend/pkg/config"
)

func TestKeyBuilders(t *testing.T) {
	c := &Client{}
	if got := c.IdempotencyKey("webhook", "abc"); got != "mk:idempotency:webhook:abc" {
		t.Fatalf("unexpected idempotency key %q", got)
	}
	if got := c.LockKey("sweeper"); got != "mk:lock:sweeper" {
		t.Fatalf("unexpected lock key %q", got)
	}
}

func TestOptionsFromConfigRequiresTarget(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatalf("expected error for empty config")
	}
}

func TestOptionsFromConfigParsesURL(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/2"})
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if opts.DB != 2 {
		t.Fatalf("expected db 2 from url, got %d", opts.DB)
	}
	if opts.Addr != "localhost:6379" {
		t.Fatalf("unexpected addr %q", opts.Addr)
	}
}
