package main

import (
	"context"
	goflag "flag"
	"time"

	"github.com/liveclass/liveclass/pkg/browser"
	"github.com/liveclass/liveclass/pkg/config"
	"github.com/liveclass/liveclass/pkg/gateway"
	"github.com/liveclass/liveclass/pkg/logger"
	"github.com/liveclass/liveclass/pkg/monitoring"
	"github.com/liveclass/liveclass/pkg/os"
	"github.com/liveclass/liveclass/pkg/service"
	"github.com/liveclass/liveclass/pkg/storage"
	"github.com/liveclass/liveclass/pkg/webrtc"
	flag "github.com/spf13/pflag"
)

var Version = "?"

func main() {
	conf := config.NewConfig()
	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	conf.ParseFlags()

	log := logger.NewConsole(conf.Liveclass.Debug, "lc", false)
	log.Info().Msgf("version %s", Version)
	if log.GetLevel() < logger.InfoLevel {
		log.Debug().Msgf("config: %+v", conf)
	}

	store, err := storage.New(conf.Liveclass.Storage.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("storage init fail")
	}
	peerApi, err := webrtc.NewApiFactory(conf.Webrtc, log)
	if err != nil {
		log.Fatal().Err(err).Msg("webrtc init fail")
	}
	hub := webrtc.NewHub(peerApi, log)
	ctl := browser.NewController(conf.Liveclass.Browser,
		func() (browser.Stream, error) { return hub.Alloc() }, log)
	gw := gateway.New(conf.Liveclass, store, ctl, hub, log)

	services := service.Group{}
	services.Add(gw)
	if conf.Liveclass.Monitoring.IsEnabled() {
		services.Add(monitoring.New(conf.Liveclass.Monitoring, "lc", log))
	}
	services.Start()

	<-os.ExpectTermination()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := services.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("service shutdown errors")
	}
	ctl.Shutdown()
	if err := store.Close(); err != nil {
		log.Error().Err(err).Msg("storage close fail")
	}
}
