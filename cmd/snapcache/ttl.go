package main

import (
	"fmt"
	"time"

	"github.com/IvanBrykalov/snapcache/cache"
)

// cacheTTL is an explicitly requested TTL. An unset cacheTTL means "use
// the configured default"; an explicit 0/none means "never expires".
type cacheTTL struct {
	ttl time.Duration
	set bool
}

func (t *cacheTTL) parse(s string) error {
	t.set = true
	if s == "none" || s == "0" {
		t.ttl = cache.NoExpiration
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid --ttl: %w", err)
	}
	if d < 0 {
		return fmt.Errorf("invalid --ttl %q: must not be negative", s)
	}
	t.ttl = d
	return nil
}
