// Package transcribe converts recorded audio into text.
package transcribe

import (
	"context"
	"errors"
)

// ErrNoSpeech indicates the engine produced an empty transcript.
var ErrNoSpeech = errors.New("transcribe: no speech recognized")

// Transcriber turns an audio file into its best-effort transcript. All
// failures, including ErrNoSpeech, are non-fatal for callers: they map a
// failed transcription to a generic transcription-failure outcome.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}
