package apiclient

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestRefresherParksWaitersInArrivalOrder(t *testing.T) {
	release := make(chan struct{})
	r := newRefresher(func(context.Context) (string, error) {
		<-release
		return "fresh", nil
	})

	const waiters = 5
	results := make(chan string, waiters+1)
	call := func() {
		token, err := r.token(context.Background())
		if err != nil {
			t.Errorf("token() error = %v", err)
		}
		results <- token
	}

	go call()
	waitFor(t, r.inFlight)

	parked := make([]chan refreshResult, 0, waiters)
	for i := 0; i < waiters; i++ {
		go call()
		waitFor(t, func() bool { return r.pending() == i+1 })
		r.mu.Lock()
		parked = append(parked, r.waiters[i])
		r.mu.Unlock()
	}

	r.mu.Lock()
	for i, wait := range r.waiters {
		if wait != parked[i] {
			r.mu.Unlock()
			t.Fatalf("waiter %d moved from its arrival position", i)
		}
	}
	r.mu.Unlock()

	close(release)
	for i := 0; i < waiters+1; i++ {
		if token := <-results; token != "fresh" {
			t.Fatalf("expected every caller to receive the refreshed token, got %q", token)
		}
	}
	if r.inFlight() || r.pending() != 0 {
		t.Fatal("expected refresher to be idle after settling")
	}
}

func TestSettleReleasesWaitersInInsertionOrder(t *testing.T) {
	r := newRefresher(nil)

	// Unbuffered channels make settle block on each send, so the receive order below is the
	// order settle delivers in.
	const waiters = 6
	chans := make([]chan refreshResult, waiters)
	for i := range chans {
		chans[i] = make(chan refreshResult)
	}
	r.refreshing = true
	r.waiters = append([]chan refreshResult(nil), chans...)

	cause := errors.New("refresh rejected")
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.settle(refreshResult{err: cause})
	}()

	remaining := make([]reflect.SelectCase, waiters)
	index := make([]int, waiters)
	for i, ch := range chans {
		remaining[i] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ch)}
		index[i] = i
	}

	var order []int
	for len(remaining) > 0 {
		chosen, value, _ := reflect.Select(remaining)
		if res := value.Interface().(refreshResult); !errors.Is(res.err, cause) {
			t.Fatalf("expected waiter to receive the refresh error, got %v", res.err)
		}
		if len(order) == 0 && r.inFlight() {
			t.Fatal("expected the refreshing flag to clear before waiters are released")
		}
		order = append(order, index[chosen])
		remaining = append(remaining[:chosen], remaining[chosen+1:]...)
		index = append(index[:chosen], index[chosen+1:]...)
	}
	<-done

	for i, got := range order {
		if got != i {
			t.Fatalf("expected release order 0..%d, got %v", waiters-1, order)
		}
	}
	if r.pending() != 0 {
		t.Fatal("expected no waiters after settling")
	}
}
