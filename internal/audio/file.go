package audio

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/wav"

	"github.com/callscribe/server/pkg/logger"
)

// FileSource yields the decoded contents of a WAV file in bounded slices.
// The whole file is decoded up front so the slice count is known before
// processing starts.
type FileSource struct {
	pcm          []byte
	sampleRate   int
	channels     int
	sliceBytes   int
	totalSlices  int
	bytesEmitted int
	seq          int64
}

// NewFileSource decodes the WAV file at path into memory and prepares it for
// slice-by-slice consumption. sliceSeconds bounds the duration of each slice.
func NewFileSource(path string, sliceSeconds float64, log *logger.Logger) (*FileSource, error) {
	if sliceSeconds <= 0 {
		sliceSeconds = 30
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &SourceError{Err: fmt.Errorf("failed to open audio file: %w", err)}
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, &SourceError{Err: fmt.Errorf("not a valid WAV file: %s", path)}
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil && err != io.EOF {
		return nil, &SourceError{Err: fmt.Errorf("failed to decode WAV file: %w", err)}
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, &SourceError{Err: fmt.Errorf("empty WAV file: %s", path)}
	}

	sampleRate := int(dec.SampleRate)
	if sampleRate == 0 && buf.Format != nil {
		sampleRate = buf.Format.SampleRate
	}
	channels := int(dec.NumChans)
	if channels == 0 && buf.Format != nil {
		channels = buf.Format.NumChannels
	}
	if sampleRate <= 0 || channels <= 0 {
		return nil, &SourceError{Err: fmt.Errorf("WAV file has no usable format: %s", path)}
	}

	// Normalize whatever bit depth the file uses down to s16le.
	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = 16
	}
	shift := uint(0)
	if bitDepth > 16 {
		shift = uint(bitDepth - 16)
	}
	scale := uint(0)
	if bitDepth < 16 {
		scale = uint(16 - bitDepth)
	}
	pcm := make([]byte, len(buf.Data)*2)
	for i, v := range buf.Data {
		s := v >> shift << scale
		if s > 32767 {
			s = 32767
		} else if s < -32768 {
			s = -32768
		}
		pcm[i*2] = byte(uint16(int16(s)))
		pcm[i*2+1] = byte(uint16(int16(s)) >> 8)
	}

	frameBytes := 2 * channels
	sliceBytes := int(float64(sampleRate)*sliceSeconds) * frameBytes
	totalSlices := (len(pcm) + sliceBytes - 1) / sliceBytes

	log.Info("Decoded audio file",
		logger.String("path", path),
		logger.Int("sample_rate", sampleRate),
		logger.Int("channels", channels),
		logger.Int("slices", totalSlices),
		logger.Float64("duration_seconds", float64(len(pcm)/frameBytes)/float64(sampleRate)))

	return &FileSource{
		pcm:         pcm,
		sampleRate:  sampleRate,
		channels:    channels,
		sliceBytes:  sliceBytes,
		totalSlices: totalSlices,
	}, nil
}

// TotalChunks returns the number of slices the file yields.
func (s *FileSource) TotalChunks() int { return s.totalSlices }

// NextChunk returns the next bounded slice, or io.EOF once the whole file
// has been emitted.
func (s *FileSource) NextChunk(ctx context.Context) (*Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.bytesEmitted >= len(s.pcm) {
		return nil, io.EOF
	}

	end := s.bytesEmitted + s.sliceBytes
	if end > len(s.pcm) {
		end = len(s.pcm)
	}

	frameBytes := 2 * s.channels
	chunk := &Chunk{
		PCM:        s.pcm[s.bytesEmitted:end],
		SampleRate: s.sampleRate,
		Channels:   s.channels,
		Sequence:   s.seq,
		Offset:     float64(s.bytesEmitted/frameBytes) / float64(s.sampleRate),
	}
	s.seq++
	s.bytesEmitted = end
	return chunk, nil
}

// Close releases the decoded buffer.
func (s *FileSource) Close() error {
	s.pcm = nil
	return nil
}
