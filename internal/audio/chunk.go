package audio

import (
	"context"
	"fmt"
)

// Chunk is a span of captured or decoded audio. PCM is interleaved signed
// 16-bit little-endian samples. A chunk is produced once by a Source and
// consumed once; it is not retained after consumption.
type Chunk struct {
	PCM        []byte
	SampleRate int
	Channels   int
	Sequence   int64
	Offset     float64 // seconds from the start of the stream
}

// Duration returns the chunk length in seconds.
func (c *Chunk) Duration() float64 {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	frames := len(c.PCM) / (2 * c.Channels)
	return float64(frames) / float64(c.SampleRate)
}

// Source yields audio chunks until the stream ends. NextChunk returns io.EOF
// when no more audio will be produced; any other error means the source
// failed. A Source is exclusively owned by one consumer for its lifetime.
type Source interface {
	NextChunk(ctx context.Context) (*Chunk, error)
	Close() error
}

// Sized is implemented by sources that know their chunk count up front
// (file-backed sources). Live sources do not implement it.
type Sized interface {
	TotalChunks() int
}

// Stoppable is implemented by sources whose production can be ended early
// while leaving already-captured audio readable (live capture).
type Stoppable interface {
	Stop()
}

// SourceError indicates the audio source itself failed: the capture device
// vanished or the file could not be read.
type SourceError struct {
	Err error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("audio source failed: %v", e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }
