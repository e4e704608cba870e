package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joehewett/eriswood/internal/logging"
	"github.com/joehewett/eriswood/internal/server"
)

func main() {
	var (
		addr      = flag.String("addr", ":1999", "listen address")
		logPath   = flag.String("log", "server.log", "log file path")
		staleSecs = flag.Int("stale", 60, "seconds before an idle player is evicted")
		sweepSecs = flag.Int("sweep", 30, "seconds between stale sweeps")
	)
	flag.Parse()

	log := logging.NewFileLogger(*logPath)
	defer func() { _ = log.Sync() }()

	manager := server.NewManager(server.RoomOptions{
		StaleThreshold: time.Duration(*staleSecs) * time.Second,
		SweepInterval:  time.Duration(*sweepSecs) * time.Second,
	}, log)

	srv := &http.Server{Addr: *addr, Handler: server.NewHandler(manager, log)}

	go func() {
		log.Infof("presence server listening on %s", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	manager.Close()
	_ = srv.Close()
}
