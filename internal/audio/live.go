package audio

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/callscribe/server/pkg/logger"
)

// LiveConfig contains configuration for a live capture source.
type LiveConfig struct {
	FFmpegPath    string
	CaptureFormat string // ffmpeg input format, e.g. "avfoundation", "alsa", "pulse"
	Input         string // ffmpeg input spec for the device
	SampleRate    int
	Channels      int
	ChunkSeconds  float64
}

// LiveSource captures audio from an input device through an ffmpeg
// subprocess emitting raw s16le PCM on stdout, and cuts the stream into
// fixed-duration chunks. Stop ends capture; audio already buffered in the
// pipe stays readable until EOF so no captured samples are lost.
type LiveSource struct {
	cfg        LiveConfig
	cmd        *exec.Cmd
	stdout     io.ReadCloser
	cancel     context.CancelFunc
	logger     *logger.Logger
	chunkBytes int

	stopped  atomic.Bool
	finished bool
	seq      int64
	frames   int64

	closeOnce sync.Once
}

// NewLiveSource starts ffmpeg capturing from the configured device.
func NewLiveSource(cfg LiveConfig, log *logger.Logger) (*LiveSource, error) {
	if cfg.SampleRate <= 0 || cfg.Channels <= 0 {
		return nil, fmt.Errorf("invalid capture format: rate=%d channels=%d", cfg.SampleRate, cfg.Channels)
	}
	if cfg.ChunkSeconds <= 0 {
		cfg.ChunkSeconds = 5
	}

	ctx, cancel := context.WithCancel(context.Background())

	args := []string{
		"-loglevel", "error",
		"-fflags", "nobuffer",
		"-f", cfg.CaptureFormat,
		"-i", cfg.Input,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", fmt.Sprintf("%d", cfg.Channels),
		"-ar", fmt.Sprintf("%d", cfg.SampleRate),
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, cfg.FFmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, &SourceError{Err: fmt.Errorf("failed to start ffmpeg capture: %w", err)}
	}

	frameBytes := 2 * cfg.Channels
	chunkBytes := int(float64(cfg.SampleRate)*cfg.ChunkSeconds) * frameBytes

	log.Info("Started live capture",
		logger.String("format", cfg.CaptureFormat),
		logger.String("input", cfg.Input),
		logger.Int("sample_rate", cfg.SampleRate),
		logger.Int("channels", cfg.Channels),
		logger.Float64("chunk_seconds", cfg.ChunkSeconds))

	return &LiveSource{
		cfg:        cfg,
		cmd:        cmd,
		stdout:     stdout,
		cancel:     cancel,
		logger:     log.Named("live-source"),
		chunkBytes: chunkBytes,
	}, nil
}

// NextChunk blocks until a full chunk of audio has been captured. After Stop,
// it drains whatever the pipe still holds (a final short chunk if needed) and
// then returns io.EOF. An EOF without a preceding Stop means the capture
// process died and is reported as a SourceError.
func (s *LiveSource) NextChunk(ctx context.Context) (*Chunk, error) {
	if s.finished {
		return nil, s.endError()
	}

	buf := make([]byte, s.chunkBytes)
	n, err := io.ReadFull(s.stdout, buf)

	// Trim to a whole frame so a torn read never splits a sample.
	frameBytes := 2 * s.cfg.Channels
	n -= n % frameBytes

	if err != nil {
		s.finished = true
		if n == 0 {
			return nil, s.endError()
		}
		// Surface the partial tail before ending the stream.
	}

	chunk := &Chunk{
		PCM:        buf[:n],
		SampleRate: s.cfg.SampleRate,
		Channels:   s.cfg.Channels,
		Sequence:   s.seq,
		Offset:     float64(s.frames) / float64(s.cfg.SampleRate),
	}
	s.seq++
	s.frames += int64(n / frameBytes)
	return chunk, nil
}

func (s *LiveSource) endError() error {
	if s.stopped.Load() {
		return io.EOF
	}
	return &SourceError{Err: fmt.Errorf("capture stream ended unexpectedly")}
}

// Stop ends capture. Audio already read from the device remains available
// through NextChunk until io.EOF.
func (s *LiveSource) Stop() {
	if s.stopped.Swap(true) {
		return
	}
	s.logger.Info("Stopping live capture")
	// Killing ffmpeg closes its end of the pipe; buffered audio stays
	// readable until EOF.
	s.cancel()
}

// Close releases the capture process and pipe.
func (s *LiveSource) Close() error {
	s.closeOnce.Do(func() {
		s.stopped.Store(true)
		s.cancel()
		s.stdout.Close()
		// Exit status is unreliable after a kill, ignore it.
		_ = s.cmd.Wait()
	})
	return nil
}
