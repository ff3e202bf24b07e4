package apiclient

import (
	"context"
	"sync"
)

type refreshResult struct {
	token string
	err   error
}

// refresher runs at most one token refresh at a time. Callers that fail authorization while
// a refresh is underway park on a channel and receive the same outcome as the caller that
// started it.
type refresher struct {
	mu         sync.Mutex
	refreshing bool
	waiters    []chan refreshResult

	refresh func(ctx context.Context) (string, error)
}

func newRefresher(refresh func(ctx context.Context) (string, error)) *refresher {
	return &refresher{refresh: refresh}
}

// token returns a fresh bearer token, starting a refresh only if none is in flight.
func (r *refresher) token(ctx context.Context) (string, error) {
	r.mu.Lock()
	if r.refreshing {
		wait := make(chan refreshResult, 1)
		r.waiters = append(r.waiters, wait)
		r.mu.Unlock()

		select {
		case res := <-wait:
			return res.token, res.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	r.refreshing = true
	r.mu.Unlock()

	// The refresh outlives the caller that happened to start it; parked callers depend on it.
	token, err := r.refresh(context.WithoutCancel(ctx))
	r.settle(refreshResult{token: token, err: err})
	return token, err
}

// settle resets the coordinator and releases parked callers in the order they arrived.
func (r *refresher) settle(res refreshResult) {
	r.mu.Lock()
	waiters := r.waiters
	r.waiters = nil
	r.refreshing = false
	r.mu.Unlock()

	for _, wait := range waiters {
		wait <- res
	}
}

func (r *refresher) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters)
}

func (r *refresher) inFlight() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refreshing
}
