// Package device plays downlink audio on the system sound card. It links
// against the platform audio stack, so it is kept apart from pkg/audio.
package device

import (
	"fmt"
	"io"
	"time"

	"telerelay/pkg/audio"

	"github.com/hajimehoshi/oto/v2"
	"go.uber.org/zap"
)

const bytesPerSample = 2

// OtoOutput is an audio.Output feeding a single oto player through an
// io.Pipe.
type OtoOutput struct {
	*audio.WriterOutput
	player oto.Player
}

// NewOtoOutput opens the audio device. oto allows a single context per
// process, so only one OtoOutput may exist.
func NewOtoOutput(sampleRate int, lead time.Duration, logger *zap.SugaredLogger) (*OtoOutput, error) {
	ctx, ready, err := oto.NewContext(sampleRate, 1, bytesPerSample)
	if err != nil {
		return nil, fmt.Errorf("open audio device: %w", err)
	}
	<-ready

	pr, pw := io.Pipe()
	player := ctx.NewPlayer(pr)
	player.Play()

	return &OtoOutput{
		WriterOutput: audio.NewWriterOutput(pw, sampleRate, lead, logger),
		player:       player,
	}, nil
}

// Close stops pending completions, closes the pipe and releases the player.
func (o *OtoOutput) Close() error {
	err := o.WriterOutput.Close()
	if perr := o.player.Close(); err == nil {
		err = perr
	}
	return err
}
