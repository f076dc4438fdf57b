package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mesh/internal/adapters/rtc"
	"github.com/dkeye/Mesh/internal/client"
	"github.com/dkeye/Mesh/internal/config"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/media"
	"github.com/dkeye/Mesh/internal/peer"
)

// remoteMedia logs link changes and drains incoming tracks.
type remoteMedia struct{}

func (remoteMedia) LinkStateChanged(remote domain.ParticipantID, state peer.LinkState) {
	log.Info().Str("module", "client").Str("remote", string(remote)).Str("state", state.String()).Msg("link state")
}

func (remoteMedia) RemoteTrack(remote domain.ParticipantID, track *webrtc.TrackRemote) {
	go func() {
		buf := make([]byte, 1500)
		var n int
		for {
			read, _, err := track.Read(buf)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					log.Debug().Err(err).Str("module", "client").Str("remote", string(remote)).Msg("remote track ended")
				}
				log.Info().Str("module", "client").Str("remote", string(remote)).Str("kind", track.Kind().String()).Int("bytes", n).Msg("remote track closed")
				return
			}
			n += read
		}
	}()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	code, err := domain.NormalizeSessionCode(cfg.Client.Session)
	if err != nil {
		log.Fatal().Err(err).Str("session", cfg.Client.Session).Msg("set client.session or MESH_CLIENT_SESSION")
	}

	var device media.Device = media.SyntheticDevice{}
	var kinds []media.Kind
	if cfg.Client.AudioFile != "" || cfg.Client.VideoFile != "" {
		device = media.FileDevice{AudioPath: cfg.Client.AudioFile, VideoPath: cfg.Client.VideoFile}
		if cfg.Client.AudioFile != "" {
			kinds = append(kinds, media.KindAudio)
		}
		if cfg.Client.VideoFile != "" {
			kinds = append(kinds, media.KindVideo)
		}
	}
	capture, err := media.Acquire(ctx, device, kinds...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to acquire local media")
	}
	defer capture.Release()

	c, err := client.Dial(ctx, cfg.Client.ServerURL, client.Options{
		DisplayName: cfg.Client.DisplayName,
		Factory:     rtc.NewFactory(rtc.ConfigFromURLs(cfg.ICEServers)),
		Capture:     capture,
		Observer:    remoteMedia{},
	})
	if err != nil {
		log.Fatal().Err(err).Str("url", cfg.Client.ServerURL).Msg("failed to connect")
	}
	defer c.Close()

	if err := c.Join(code); err != nil {
		log.Fatal().Err(err).Msg("failed to join")
	}
	log.Info().Str("pid", string(c.ID())).Str("session", string(code)).Msg("Mesh client started")

	select {
	case <-ctx.Done():
		if err := c.Leave(); err != nil && !errors.Is(err, client.ErrNotJoined) {
			log.Warn().Err(err).Msg("leave")
		}
	case <-c.Done():
		log.Warn().Msg("relay connection lost")
	}
	log.Info().Msg("Mesh client exited")
}
