package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	sycmd "github.com/sublime-ycmd/sublime-ycmd"
	"github.com/sublime-ycmd/sublime-ycmd/internal/config"
	"github.com/sublime-ycmd/sublime-ycmd/internal/logger"
)

const shutdownGrace = 10 * time.Second

func runServe(gf *GlobalFlags, sf *ServeFlags) error {
	var fc config.FileConfig
	if gf.ConfigPath != "" {
		loaded, err := sycmd.LoadConfig(gf.ConfigPath)
		if err != nil {
			return err
		}
		fc = loaded
	}

	level := gf.LogLevel
	if fc.Broker.LogLevel != "" {
		level = fc.Broker.LogLevel
	}
	log := logger.New(os.Stderr, logger.ParseLevel(level), true)

	if err := sycmd.RegisterMetricsDefault(); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	var journal *sycmd.Journal
	if fc.Broker.Store != "" {
		j, err := sycmd.OpenJournal(fc.Broker.Store)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		journal = j
		defer func() { _ = journal.Close() }()
	}

	broker, err := sycmd.New(sycmd.Config{
		Template: fc.Params(),
		Resolver: sycmd.PathResolver{},
		Threads:  fc.Broker.BackgroundThreads,
		Journal:  journal,
		Log:      log,
	})
	if err != nil {
		return err
	}

	listen := fc.Broker.Listen
	if sf.Listen != "" {
		listen = sf.Listen
	}
	if listen == "" {
		listen = config.DefaultListen
	}
	httpServer := sycmd.NewHTTPServer(listen, "/v1", broker, journal)
	log.Info("broker started", "listen", listen)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	log.Info("shutting down", "signal", sig.String())

	if !broker.Shutdown(false, shutdownGrace) {
		log.Warn("graceful shutdown incomplete, killing remaining servers")
		broker.Shutdown(true, shutdownGrace)
	}
	return httpServer.Close()
}
