// Package audio defines the input side of drumcoach: the [AudioFrame] unit
// consumed by the analysis core, the [Source] abstraction implemented by
// capture adapters, and helpers that turn raw PCM into analysis frames.
//
// Implementations of [Source] live in adapter packages (audio/wavfile,
// audio/synth). The interface is intentionally narrow so the session loop stays
// decoupled from where the signal comes from.
//
// This package lives under pkg/ because external code (for example a
// microphone adapter running next to the UI) is expected to implement [Source].
package audio

import (
	"context"
	"errors"
)

// ErrNoInput is returned (wrapped) by [Source.Start] when the audio input is
// unavailable, e.g. a missing file, a denied device permission or a device
// error. The core never fabricates hits in that case; it reports "not running".
var ErrNoInput = errors.New("audio: no input signal")

// Source is a push-based producer of analysis frames.
//
// Implementations must be safe for concurrent use of Close with Start.
type Source interface {
	// Start begins producing frames and returns the channel they are delivered
	// on. The channel is closed when the input ends, when ctx is cancelled or
	// when Close is called. Start may be called at most once.
	//
	// Returns an error wrapping [ErrNoInput] when the input cannot be opened.
	Start(ctx context.Context) (<-chan AudioFrame, error)

	// Close stops frame production and releases resources. It is safe to call
	// Close more than once; subsequent calls are no-ops and return nil.
	Close() error
}
