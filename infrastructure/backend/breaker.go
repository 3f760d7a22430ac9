package backend

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// Default circuit breaker settings for the Qdrant backend. Consecutive
// transport failures trip the breaker; it stays open for breakerTimeout
// before allowing a single probe request through.
const (
	breakerMaxFailures uint32        = 5
	breakerTimeout     time.Duration = 15 * time.Second
	breakerInterval    time.Duration = 60 * time.Second
)

// Breaker wraps every QdrantAdapter call so a struggling backend fails
// fast instead of piling up blocked goroutines behind a dead
// connection. gobreaker's generic CircuitBreaker is keyed on *any*
// single response type, so Call type-erases the per-method response
// type behind a closure rather than needing one breaker per RPC.
type Breaker struct {
	cb *gobreaker.CircuitBreaker[any]
}

// NewBreaker builds a Breaker named for logging/metrics purposes.
func NewBreaker(name string) *Breaker {
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    breakerInterval,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerMaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})
	return &Breaker{cb: cb}
}

// Call executes fn through the breaker, preserving fn's concrete
// response type for the caller via generics.
func Call[T any](b *Breaker, fn func() (T, error)) (T, error) {
	result, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if v, ok := result.(T); ok {
			return v, err
		}
		return zero, err
	}
	return result.(T), nil
}

// State returns the breaker's current state, for health reporting.
func (b *Breaker) State() gobreaker.State { return b.cb.State() }
