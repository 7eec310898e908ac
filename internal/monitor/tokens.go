package monitor

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"stockwatch/internal/types"
)

// DefaultTokenTTL is how long a minted order-recovery token stays
// resolvable. Expired entries are collected by the per-cycle sweep, so an
// entry can outlive its TTL by at most one poll-cycle period.
const DefaultTokenTTL = 24 * time.Hour

type tokenEntry struct {
	params     types.OrderParams
	insertedAt time.Time
}

type optionsEntry struct {
	options    []string
	insertedAt time.Time
}

// TokenCache holds the ephemeral order-recovery state: the UUID-keyed token
// map minted per notification button, and the legacy "{planCode}|{dc}" keyed
// options map kept for older callback payloads that carried no token. One
// mutex guards both maps; reads never expire entries.
type TokenCache struct {
	mu      sync.Mutex
	tokens  map[string]tokenEntry
	options map[string]optionsEntry

	ttl    time.Duration
	clock  types.Clock
	logger types.Logger
}

// NewTokenCache returns an empty cache. A non-positive ttl falls back to
// DefaultTokenTTL.
func NewTokenCache(ttl time.Duration, clock types.Clock, logger types.Logger) *TokenCache {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenCache{
		tokens:  make(map[string]tokenEntry),
		options: make(map[string]optionsEntry),
		ttl:     ttl,
		clock:   clock,
		logger:  logger.With("component", "tokencache"),
	}
}

// PutToken mints a fresh UUID token bound to the given order parameters and
// returns it.
func (c *TokenCache) PutToken(params types.OrderParams) string {
	token := uuid.NewString()

	c.mu.Lock()
	c.tokens[token] = tokenEntry{params: params, insertedAt: c.clock.Now()}
	c.mu.Unlock()

	// The token is a bearer capability for placing an order; only a prefix
	// reaches the logs.
	c.logger.Info("order token minted",
		"tokenPrefix", token[:8],
		"planCode", params.PlanCode,
		"datacenter", params.Datacenter,
		"options", params.Options,
	)
	return token
}

// ResolveToken returns the order parameters bound to token. Entries past
// their TTL but not yet swept still resolve; only the sweep removes them.
func (c *TokenCache) ResolveToken(token string) (types.OrderParams, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.tokens[token]
	if !ok {
		return types.OrderParams{}, false
	}
	return e.params, true
}

// PutOptions records the option codes used for planCode at datacenter so a
// legacy callback lacking a token can still recover them.
func (c *TokenCache) PutOptions(planCode, datacenter string, options []string) {
	key := planCode + "|" + datacenter

	c.mu.Lock()
	c.options[key] = optionsEntry{
		options:    append([]string(nil), options...),
		insertedAt: c.clock.Now(),
	}
	c.mu.Unlock()
}

// ResolveOptions returns the recorded option codes for planCode at
// datacenter.
func (c *TokenCache) ResolveOptions(planCode, datacenter string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.options[planCode+"|"+datacenter]
	if !ok {
		return nil, false
	}
	return append([]string(nil), e.options...), true
}

// Sweep removes every entry whose TTL has elapsed and returns how many were
// dropped. The monitor loop runs it once per cycle, including idle cycles.
func (c *TokenCache) Sweep() int {
	now := c.clock.Now()

	c.mu.Lock()
	var expiredTokens, expiredOptions int
	for token, e := range c.tokens {
		if now.Sub(e.insertedAt) >= c.ttl {
			delete(c.tokens, token)
			expiredTokens++
		}
	}
	for key, e := range c.options {
		if now.Sub(e.insertedAt) >= c.ttl {
			delete(c.options, key)
			expiredOptions++
		}
	}
	c.mu.Unlock()

	if expiredTokens > 0 || expiredOptions > 0 {
		c.logger.Info("expired cache entries swept",
			"tokens", expiredTokens,
			"options", expiredOptions,
		)
	}
	return expiredTokens + expiredOptions
}

// Len returns the total number of live entries across both maps.
func (c *TokenCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tokens) + len(c.options)
}
