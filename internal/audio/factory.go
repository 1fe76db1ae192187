package audio

import (
	"fmt"

	"github.com/callscribe/server/pkg/logger"
)

// Device describes a configured capture device. Enumeration of OS audio
// devices happens outside this process; the config names the devices the
// server may capture from and the ffmpeg input spec for each.
type Device struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Input string `json:"-"`
}

// SourceSpec selects what a session records from: a configured capture
// device for live mode, or a WAV file path for file mode.
type SourceSpec struct {
	DeviceID string
	FilePath string
}

// FactoryConfig contains the settings shared by all sources the factory
// builds.
type FactoryConfig struct {
	FFmpegPath       string
	CaptureFormat    string
	SampleRate       int
	Channels         int
	ChunkSeconds     float64
	FileSliceSeconds float64
	Devices          []Device
}

// Factory builds audio sources from source specs.
type Factory struct {
	cfg    FactoryConfig
	logger *logger.Logger
}

// NewFactory creates a new source factory.
func NewFactory(cfg FactoryConfig, log *logger.Logger) *Factory {
	return &Factory{cfg: cfg, logger: log.Named("audio")}
}

// Devices returns the configured capture devices.
func (f *Factory) Devices() []Device {
	return f.cfg.Devices
}

// NewSource builds the source described by spec. Exactly one of DeviceID or
// FilePath must be set.
func (f *Factory) NewSource(spec SourceSpec) (Source, error) {
	switch {
	case spec.FilePath != "":
		return NewFileSource(spec.FilePath, f.cfg.FileSliceSeconds, f.logger)
	case spec.DeviceID != "":
		dev, err := f.device(spec.DeviceID)
		if err != nil {
			return nil, err
		}
		return NewLiveSource(LiveConfig{
			FFmpegPath:    f.cfg.FFmpegPath,
			CaptureFormat: f.cfg.CaptureFormat,
			Input:         dev.Input,
			SampleRate:    f.cfg.SampleRate,
			Channels:      f.cfg.Channels,
			ChunkSeconds:  f.cfg.ChunkSeconds,
		}, f.logger)
	default:
		return nil, fmt.Errorf("source spec must name a device or a file")
	}
}

func (f *Factory) device(id string) (Device, error) {
	for _, d := range f.cfg.Devices {
		if d.ID == id {
			return d, nil
		}
	}
	return Device{}, &SourceError{Err: fmt.Errorf("unknown capture device: %s", id)}
}
