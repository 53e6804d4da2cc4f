package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"telerelay/internal/client"
	"telerelay/pkg/audio"
	"telerelay/pkg/audio/device"
	"telerelay/pkg/logger"
	"telerelay/pkg/validation"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	var (
		url      string
		level    string
		toneHz   float64
		noAudio  bool
		lead     time.Duration
		maxQueue int
	)
	flag.StringVar(&url, "url", envOr("TELERELAY_URL", "ws://localhost:8080/ws"), "relay WebSocket URL or env TELERELAY_URL")
	flag.StringVar(&level, "log-level", envOr("TELERELAY_LOG_LEVEL", "info"), "log level")
	flag.Float64Var(&toneHz, "tone", 0, "send a test tone of this frequency on the uplink (0 disables)")
	flag.BoolVar(&noAudio, "no-audio", false, "discard downlink audio instead of opening the audio device")
	flag.DurationVar(&lead, "audio-lead", 20*time.Millisecond, "how early the next audio unit is queued to the device")
	flag.IntVar(&maxQueue, "audio-max-queue", 256, "maximum queued downlink chunks")
	flag.Parse()

	zapLogger := logger.NewWithFormat(level, "console")
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	if err := validation.ValidateRelayURL(url); err != nil {
		log.Fatalw("invalid relay address", "url", url, "error", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	out, closeOut := openOutput(ctx, noAudio, lead, log)
	defer closeOut()

	cfg := client.DefaultConfig(url)
	cfg.Scheduler.MaxQueue = maxQueue
	session := client.NewSession(cfg, out, func(text string) {
		fmt.Println(text)
	}, log.Named("session"))
	defer session.Close()

	keys := client.NewMovementKeys(session.SendCommand)

	runErr := make(chan error, 1)
	go func() { runErr <- session.Run(ctx) }()

	if toneHz > 0 {
		go sendTone(ctx, session, toneHz, cfg.UplinkFrameSize, log)
	}

	go readCommands(ctx, cancel, session, keys, log)

	select {
	case <-ctx.Done():
	case err := <-runErr:
		if err != nil {
			log.Errorw("session ended", "error", err)
		}
	}
	_ = keys.ReleaseAll()
	log.Info("operator stopped")
}

// openOutput opens the audio device, falling back to a wall clock driven
// output that discards samples.
func openOutput(ctx context.Context, noAudio bool, lead time.Duration, log *zap.SugaredLogger) (audio.Output, func()) {
	if !noAudio {
		out, err := device.NewOtoOutput(audio.DownlinkSampleRate, lead, log.Named("audio"))
		if err == nil {
			return out, func() { _ = out.Close() }
		}
		log.Warnw("audio device unavailable, discarding downlink audio", "error", err)
	}

	out := audio.NewClockOutput()
	tickCtx, stop := context.WithCancel(ctx)
	go func() {
		const step = 10 * time.Millisecond
		ticker := time.NewTicker(step)
		defer ticker.Stop()
		for {
			select {
			case <-tickCtx.Done():
				return
			case <-ticker.C:
				out.Advance(step)
			}
		}
	}()
	return out, stop
}

// readCommands reads stdin lines. "+key" and "-key" press and release a
// movement key, "/release" lets go of every key, "/quit" exits; anything
// else is sent as a command or chat line.
func readCommands(ctx context.Context, cancel context.CancelFunc, session *client.Session, keys *client.MovementKeys, log *zap.SugaredLogger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var err error
		switch {
		case line == "/quit":
			cancel()
			return
		case line == "/release":
			err = keys.ReleaseAll()
		case strings.HasPrefix(line, "+") && len(line) > 1:
			err = keys.Press(line[1:])
		case strings.HasPrefix(line, "-") && len(line) > 1:
			err = keys.Release(line[1:])
		default:
			err = session.SendCommand(line)
		}
		if err != nil {
			log.Warnw("command not sent", "input", line, "error", err)
		}
	}
}

func sendTone(ctx context.Context, session *client.Session, hz float64, frameSize int, log *zap.SugaredLogger) {
	period := audio.Duration(frameSize, audio.UplinkSampleRate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	phase := 0.0
	step := 2 * math.Pi * hz / audio.UplinkSampleRate
	samples := make([]float32, frameSize)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for i := range samples {
			samples[i] = float32(0.2 * math.Sin(phase))
			phase += step
		}
		phase = math.Mod(phase, 2*math.Pi)

		if err := session.SendCapture(samples, nil); err != nil && !errors.Is(err, client.ErrNotConnected) {
			log.Debugw("uplink frame not sent", "error", err)
		}
	}
}
