package enginebridge

import "sync"

// NopEngine is a minimal RuleEngine test double: it records every
// asserted fact and registered function in order without doing anything
// with them. Lock/Unlock wrap a real sync.Mutex, so concurrent asserts
// from the tick goroutine and Fleet's worker pool serialize exactly as a
// real engine's recursive lock would; NopEngine itself is never
// reentered (nothing in this repository calls into Bridge while already
// holding the lock), so plain mutual exclusion is sufficient here even
// though the RuleEngine contract at large requires reentrancy.
type NopEngine struct {
	mu        sync.Mutex
	Facts     []string
	Functions map[string]any
}

// NewNopEngine creates an empty NopEngine ready for use.
func NewNopEngine() *NopEngine {
	return &NopEngine{Functions: make(map[string]any)}
}

func (e *NopEngine) AssertFact(text string) error {
	e.Facts = append(e.Facts, text)
	return nil
}

func (e *NopEngine) Lock() { e.mu.Lock() }

func (e *NopEngine) Unlock() { e.mu.Unlock() }

func (e *NopEngine) RegisterFunction(name string, fn any) error {
	e.Functions[name] = fn
	return nil
}

// Snapshot returns a copy of every fact asserted so far, safe to call
// concurrently with in-flight asserts.
func (e *NopEngine) Snapshot() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.Facts...)
}
