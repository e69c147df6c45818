// Package testutil holds helpers shared by unit tests across packages.
package testutil

import (
	"errors"
	"sync"

	"chatpulse/internal/sentinel"
	dErrors "chatpulse/pkg/domain-errors"
)

// ConcurrentResult counts outcomes of a RunConcurrent call.
type ConcurrentResult struct {
	Successes int32
	Conflicts int32
	NotFounds int32
	// Errors counts every other failure; Failures holds them.
	Errors   int32
	Failures []error
}

// Total returns the number of calls that ran.
func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.Conflicts + r.NotFounds + r.Errors
}

func (r *ConcurrentResult) record(err error) {
	switch {
	case err == nil:
		r.Successes++
	case errors.Is(err, sentinel.ErrAlreadyExists), dErrors.HasCode(err, dErrors.CodeAlreadyExists):
		r.Conflicts++
	case errors.Is(err, sentinel.ErrNotFound), dErrors.HasCode(err, dErrors.CodeNotFound):
		r.NotFounds++
	default:
		r.Errors++
		r.Failures = append(r.Failures, err)
	}
}

// RunConcurrent calls fn from n goroutines released together, so the calls
// genuinely race, and buckets the results. Duplicate-tenant and
// unknown-tenant errors are counted separately whether they arrive as
// sentinels or as domain errors.
func RunConcurrent(n int, fn func(idx int) error) *ConcurrentResult {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		result  ConcurrentResult
		release = make(chan struct{})
	)
	for i := range n {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			<-release
			err := fn(idx)
			mu.Lock()
			result.record(err)
			mu.Unlock()
		}(i)
	}
	close(release)
	wg.Wait()
	return &result
}
