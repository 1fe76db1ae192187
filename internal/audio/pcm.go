package audio

import "fmt"

// PCM16ToFloat32Mono converts interleaved little-endian PCM16 bytes into
// normalized mono float32 samples, averaging channels when there is more
// than one.
func PCM16ToFloat32Mono(pcm []byte, channels int) ([]float32, error) {
	if channels <= 0 {
		channels = 1
	}
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("pcm16 length must be even, got %d", len(pcm))
	}

	sampleCount := len(pcm) / 2
	frames := sampleCount / channels
	out := make([]float32, frames)

	for f := 0; f < frames; f++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			i := (f*channels + ch) * 2
			v := int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8)
			sum += float32(v) / 32768.0
		}
		out[f] = sum / float32(channels)
	}
	return out, nil
}

// Float32ToPCM16 converts normalized float32 samples into little-endian
// PCM16 bytes, clipping out-of-range values.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		v := int16(s * 32767.0)
		out[i*2] = byte(uint16(v))
		out[i*2+1] = byte(uint16(v) >> 8)
	}
	return out
}

// ResampleLinear resamples mono float32 samples from inRate to outRate using
// linear interpolation. Returns the input unchanged when the rates match.
func ResampleLinear(samples []float32, inRate, outRate int) []float32 {
	if inRate <= 0 || outRate <= 0 || inRate == outRate || len(samples) == 0 {
		return samples
	}
	ratio := float64(outRate) / float64(inRate)
	outLen := int(float64(len(samples)) * ratio)
	if outLen < 1 {
		outLen = 1
	}
	out := make([]float32, outLen)
	for i := 0; i < outLen; i++ {
		srcPos := float64(i) / ratio
		i0 := int(srcPos)
		if i0 >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(srcPos - float64(i0))
		out[i] = samples[i0] + (samples[i0+1]-samples[i0])*frac
	}
	return out
}
