// Package mock provides an in-memory mock implementation of the [audio.Source]
// interface for use in unit tests.
//
// The mock is safe for concurrent use. It records every method call so that
// tests can assert on call counts, and it exposes exported fields that the test
// can set to control return values.
//
// Typical usage:
//
//	src := &mock.Source{Frames: []audio.AudioFrame{f1, f2}}
//	ch, err := src.Start(ctx)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/drumcoach/pkg/audio"
)

// Source is a mock implementation of [audio.Source]. Frames are delivered in
// order and the channel is closed afterwards, unless HoldOpen is set, in which
// case the channel stays open until Close or context cancellation.
type Source struct {
	mu sync.Mutex

	// Frames are delivered in order on the channel returned by Start.
	Frames []audio.AudioFrame

	// HoldOpen keeps the channel open after all Frames were delivered.
	HoldOpen bool

	// StartError is returned by Start.
	StartError error

	// CloseError is returned by Close.
	CloseError error

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	done     chan struct{}
	doneOnce sync.Once
}

// Start implements [audio.Source].
func (s *Source) Start(ctx context.Context) (<-chan audio.AudioFrame, error) {
	s.mu.Lock()
	s.CallCountStart++
	if s.StartError != nil {
		err := s.StartError
		s.mu.Unlock()
		return nil, err
	}
	frames := make([]audio.AudioFrame, len(s.Frames))
	copy(frames, s.Frames)
	hold := s.HoldOpen
	done := s.doneChan()
	s.mu.Unlock()

	out := make(chan audio.AudioFrame)
	go func() {
		defer close(out)
		for _, f := range frames {
			select {
			case out <- f:
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
		if hold {
			select {
			case <-ctx.Done():
			case <-done:
			}
		}
	}()
	return out, nil
}

// Close implements [audio.Source]. Returns CloseError.
func (s *Source) Close() error {
	s.mu.Lock()
	s.CallCountClose++
	done := s.doneChan()
	err := s.CloseError
	s.mu.Unlock()
	s.doneOnce.Do(func() { close(done) })
	return err
}

// doneChan lazily creates the stop channel. Must be called with s.mu held.
func (s *Source) doneChan() chan struct{} {
	if s.done == nil {
		s.done = make(chan struct{})
	}
	return s.done
}
