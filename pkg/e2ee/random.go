package e2ee

import (
	"crypto/rand"
	"io"
	"sync"
)

var (
	randMu        sync.RWMutex
	randomnessSrc io.Reader = rand.Reader
)

// UseDeterministicRandom swaps the randomness source for deterministic testing
// and returns a restore function that must be called when the test completes.
func UseDeterministicRandom(r io.Reader) func() {
	randMu.Lock()
	prev := randomnessSrc
	randomnessSrc = r
	randMu.Unlock()
	return func() {
		randMu.Lock()
		randomnessSrc = prev
		randMu.Unlock()
	}
}

func readRandom(b []byte) error {
	randMu.RLock()
	src := randomnessSrc
	randMu.RUnlock()
	_, err := io.ReadFull(src, b)
	return err
}

// sourceReader adapts readRandom to io.Reader for the stdlib constructors.
type sourceReader struct{}

func (sourceReader) Read(p []byte) (int, error) {
	if err := readRandom(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

var _ io.Reader = sourceReader{}
