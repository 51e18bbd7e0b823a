package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.viam.com/rdk/logging"
	goutils "go.viam.com/utils"

	sim "so_sim"
)

func main() {
	if err := realMain(); err != nil {
		logging.NewLogger("so-sim").Fatal(err)
	}
}

func realMain() error {
	configPath := flag.String("config", "", "path to config JSON (optional)")
	urdfPath := flag.String("urdf", "", "path to robot URDF (overrides config)")
	scene := flag.String("scene", "", "initial scene name (overrides config)")
	feedURL := flag.String("feed", "", "leader action feed websocket URL (overrides config)")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	flag.Parse()

	logger := logging.NewLogger("so-sim")

	cfg := &sim.SimConfig{}
	if *configPath != "" {
		loaded, err := sim.LoadSimConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if *urdfPath != "" {
		cfg.URDFFile = *urdfPath
	}
	if *scene != "" {
		cfg.Scene = *scene
	}
	if *feedURL != "" {
		cfg.FeedURL = *feedURL
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	if err := cfg.Validate(*configPath); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	robot, err := sim.LoadURDFFile(cfg.URDFFile)
	if err != nil {
		return err
	}
	logger.Infof("loaded robot %s with %d joints", robot.Name, len(robot.Joints()))

	s, err := sim.NewSim(*cfg, robot, nil, logger)
	if err != nil {
		return err
	}

	if cfg.FeedURL != "" {
		feed := sim.NewFeedClient(cfg.FeedURL, s.QueueActions, logger)
		goutils.PanicCapturingGo(func() { feed.Run(ctx) })
	} else {
		logger.Warn("no action feed configured, robot will hold its pose")
	}

	store, err := sim.NewCaptureStore(cfg.CaptureDir, logger)
	if err != nil {
		return err
	}
	gen := sim.NewGenerator(cfg.Generation, logger)
	api := sim.NewCaptureServer(s, store, gen, logger)

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: api.ServeMux()}
	goutils.PanicCapturingGo(func() {
		logger.Infof("HTTP API listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("HTTP server error: %v", err)
			stop()
		}
	})
	defer server.Close()

	s.Run(ctx)
	return nil
}
