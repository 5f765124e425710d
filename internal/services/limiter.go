package services

import (
	"context"
	"sync"
	"sync/atomic"
)

// ConcurrencyLimits bounds how many workflow instances may execute at
// once, globally and per definition family.
type ConcurrencyLimits struct {
	GlobalMax     int `yaml:"global_max" json:"global_max"`
	PerDefinition int `yaml:"per_definition" json:"per_definition"`
}

// ConcurrencyLimiter controls how many workflow instances can execute
// simultaneously. It uses channel-based counting semaphores at two
// levels: global and per definition family.
type ConcurrencyLimiter struct {
	global        chan struct{}
	perDefinition map[string]chan struct{}
	mu            sync.Mutex
	limits        ConcurrencyLimits
	activeCount   atomic.Int64
}

// NewConcurrencyLimiter creates a limiter with the given limits.
func NewConcurrencyLimiter(limits ConcurrencyLimits) *ConcurrencyLimiter {
	if limits.GlobalMax <= 0 {
		limits.GlobalMax = 10
	}
	if limits.PerDefinition <= 0 {
		limits.PerDefinition = 3
	}

	return &ConcurrencyLimiter{
		global:        make(chan struct{}, limits.GlobalMax),
		perDefinition: make(map[string]chan struct{}),
		limits:        limits,
	}
}

// Acquire blocks until both global and per-definition slots are
// available, or returns the context's error if it is cancelled first.
func (c *ConcurrencyLimiter) Acquire(ctx context.Context, definitionID string) error {
	select {
	case c.global <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	defCh := c.getOrCreateDefinitionChan(definitionID)
	select {
	case defCh <- struct{}{}:
		c.activeCount.Add(1)
		return nil
	case <-ctx.Done():
		// Give back the global slot since we couldn't get the per-definition one.
		<-c.global
		return ctx.Err()
	}
}

// Release returns both the global and per-definition slots.
func (c *ConcurrencyLimiter) Release(definitionID string) {
	c.activeCount.Add(-1)

	c.mu.Lock()
	if ch, ok := c.perDefinition[definitionID]; ok {
		select {
		case <-ch:
		default:
		}
	}
	c.mu.Unlock()

	select {
	case <-c.global:
	default:
	}
}

// ConcurrencyStats reports current usage.
type ConcurrencyStats struct {
	ActiveRuns    int `json:"active_runs"`
	GlobalMax     int `json:"global_max"`
	PerDefinition int `json:"per_definition"`
}

// Stats returns the current concurrency statistics.
func (c *ConcurrencyLimiter) Stats() ConcurrencyStats {
	return ConcurrencyStats{
		ActiveRuns:    int(c.activeCount.Load()),
		GlobalMax:     c.limits.GlobalMax,
		PerDefinition: c.limits.PerDefinition,
	}
}

func (c *ConcurrencyLimiter) getOrCreateDefinitionChan(id string) chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.perDefinition[id]
	if !ok {
		ch = make(chan struct{}, c.limits.PerDefinition)
		c.perDefinition[id] = ch
	}
	return ch
}
