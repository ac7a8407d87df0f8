package server

import (
	"context"
	"sync"
)

// HealthChecker probes one dependency.
type HealthChecker interface {
	Name() string
	Healthy(ctx context.Context) bool
}

type OkHealthChecker struct {
}

func NewOkHealthChecker() *OkHealthChecker {
	return &OkHealthChecker{}
}

func (hc *OkHealthChecker) Name() string {
	return "app"
}

func (hc *OkHealthChecker) Healthy(ctx context.Context) bool {
	return true
}

// Report is the result of probing every checker.
type Report struct {
	Healthy bool            `json:"healthy"`
	Checks  map[string]bool `json:"checks"`
}

// Check probes all checkers concurrently.
func Check(ctx context.Context, checkers ...HealthChecker) Report {
	r := Report{Healthy: true, Checks: make(map[string]bool, len(checkers))}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, hc := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok := hc.Healthy(ctx)

			mu.Lock()
			defer mu.Unlock()
			r.Checks[hc.Name()] = ok
			if !ok {
				r.Healthy = false
			}
		}()
	}
	wg.Wait()
	return r
}
