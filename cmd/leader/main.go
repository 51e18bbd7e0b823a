package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.viam.com/rdk/logging"
	goutils "go.viam.com/utils"

	sim "so_sim"
)

func main() {
	if err := realMain(); err != nil {
		logging.NewLogger("so-leader").Fatal(err)
	}
}

func realMain() error {
	port := flag.String("port", "", "serial port of the leader arm (auto-discovered if empty)")
	baud := flag.Int("baud", 1000000, "serial baudrate")
	fps := flag.Int("fps", 30, "action streaming rate")
	addr := flag.String("addr", ":8765", "WebSocket listen address")
	calFile := flag.String("calibration", "", "path to calibration JSON (optional)")
	flag.Parse()

	logger := logging.NewLogger("so-leader")

	cfg := sim.LeaderConfig{
		Port:            *port,
		Baudrate:        *baud,
		Timeout:         5 * time.Second,
		FPS:             *fps,
		CalibrationFile: *calFile,
	}
	if err := cfg.Validate(logger); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	leader, err := sim.NewLeader(cfg, logger)
	if err != nil {
		return err
	}
	defer leader.Close()

	hub := sim.NewFeedHub(logger)
	server := &http.Server{Addr: *addr, Handler: hub}
	goutils.PanicCapturingGo(func() {
		logger.Infof("streaming leader actions on ws://%s", *addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("WebSocket server error: %v", err)
			stop()
		}
	})
	defer server.Close()

	return leader.Stream(ctx, cfg.FPS, hub)
}
