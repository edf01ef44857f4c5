package audio

import (
	"context"
	"time"

	"github.com/agalue/voice-assistant/internal/types"
)

// StartFrames starts capture and returns a channel of types.PcmFrame, the
// shape C2 VAD+Framer consumes, adapting the capturer's float32-callback
// model to the pipeline's channel-of-frames convention (§4.1). The channel
// is closed once ctx is done and capture has stopped.
func (c *Capturer) StartFrames(ctx context.Context) (<-chan types.PcmFrame, error) {
	out := make(chan types.PcmFrame, 32)

	c.onSamples = func(samples []float32) {
		frame := types.PcmFrame{
			Samples:    float32ToInt16(samples),
			SampleRate: int(c.sampleRate),
			Channels:   1,
			CapturedAt: time.Now(),
		}
		select {
		case out <- frame:
		case <-ctx.Done():
		default:
			// Consumer fell behind; drop the frame rather than block the
			// capture processing loop.
		}
	}

	if err := c.Start(); err != nil {
		close(out)
		return nil, err
	}

	go func() {
		<-ctx.Done()
		c.Stop()
		close(out)
	}()

	return out, nil
}

// PlayFrame plays one PcmFrame of 16-bit PCM samples, converting to the
// float32 format the playback device expects, then blocks on Play as usual.
func (p *Player) PlayFrame(frame types.PcmFrame) error {
	return p.Play(AudioBuffer{
		Samples:    int16ToFloat32(frame.Samples),
		SampleRate: frame.SampleRate,
	})
}

func float32ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		out[i] = int16(s * 32767)
	}
	return out
}

func int16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768
	}
	return out
}
