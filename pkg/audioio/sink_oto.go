//go:build cgo

package audioio

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process, so every OtoOutput shares it.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoRate int
	otoErr  error
)

func sharedOtoContext(cfg Config) (*oto.Context, error) {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   cfg.SampleRate,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   cfg.BufferDuration,
		})
		if err != nil {
			otoErr = err
			return
		}
		<-ready
		otoCtx, otoRate = ctx, cfg.SampleRate
	})
	if otoErr != nil {
		return nil, fmt.Errorf("%w: open speaker: %v", ErrDeviceUnavailable, otoErr)
	}
	if otoRate != cfg.SampleRate {
		return nil, fmt.Errorf("%w: speaker already opened at %d Hz, want %d Hz", ErrDeviceUnavailable, otoRate, cfg.SampleRate)
	}
	return otoCtx, nil
}

// OtoOutput plays a Timeline through the system speaker. The oto player
// pulls from the timeline, so the clock advances at the device rate.
type OtoOutput struct {
	*Timeline

	logger *slog.Logger
	player *oto.Player
	once   sync.Once
}

// newDeviceOutput opens the speaker and starts pulling from a new timeline.
func newDeviceOutput(cfg Config, logger *slog.Logger) (Output, error) {
	ctx, err := sharedOtoContext(cfg)
	if err != nil {
		return nil, err
	}

	o := &OtoOutput{
		Timeline: NewTimeline(cfg.SampleRate),
		logger:   logger,
	}
	o.player = ctx.NewPlayer(o.Timeline)
	o.player.Play()

	logger.Info("speaker output started", "sample_rate", cfg.SampleRate)
	return o, nil
}

// Name returns "oto".
func (o *OtoOutput) Name() string {
	return "oto"
}

// Close stops the player and the timeline.
func (o *OtoOutput) Close() error {
	var err error
	o.once.Do(func() {
		_ = o.Timeline.Close()
		o.player.Pause()
		err = o.player.Close()
		o.logger.Info("speaker output stopped")
	})
	return err
}

// Ensure OtoOutput implements Output.
var _ Output = (*OtoOutput)(nil)
