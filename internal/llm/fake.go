package llm

import (
	"context"
	"sync"

	"github.com/esinanturan/Acontext/internal/errors"
)

// FakeGenerator replays a scripted sequence of responses and records the
// requests it received. Safe for concurrent use.
type FakeGenerator struct {
	mu       sync.Mutex
	script   []step
	requests []Request
}

type step struct {
	resp Response
	err  error
}

func NewFakeGenerator() *FakeGenerator {
	return &FakeGenerator{}
}

// Respond appends a successful response to the script.
func (f *FakeGenerator) Respond(resp Response) *FakeGenerator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, step{resp: resp})
	return f
}

// Fail appends an error to the script.
func (f *FakeGenerator) Fail(err error) *FakeGenerator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, step{err: err})
	return f
}

// Requests returns a copy of every request seen so far.
func (f *FakeGenerator) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Request, len(f.requests))
	copy(out, f.requests)
	return out
}

// Calls returns how many completions were requested.
func (f *FakeGenerator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *FakeGenerator) Complete(_ context.Context, req Request) (Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.script) == 0 {
		return Response{}, errors.NewModelError("fake generator script exhausted", nil, false)
	}
	next := f.script[0]
	f.script = f.script[1:]
	if next.err != nil {
		return Response{}, next.err
	}
	return next.resp, nil
}
