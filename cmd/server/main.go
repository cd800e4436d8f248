package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/obby/fsclassify/config"
	"github.com/obby/fsclassify/internal/classifier"
	"github.com/obby/fsclassify/internal/hub"
	"github.com/obby/fsclassify/internal/logging"
	"github.com/obby/fsclassify/internal/patterns"
	"github.com/obby/fsclassify/internal/pipeline"
	"github.com/obby/fsclassify/internal/server"
	"github.com/obby/fsclassify/internal/tracker"
	"github.com/obby/fsclassify/internal/watcher"
)

func main() {
	// Environment first, command line flags override
	cfg := config.LoadConfig()
	ignore := strings.Join(cfg.IgnorePatterns, ",")

	flag.StringVar(&cfg.WatchPath, "path", cfg.WatchPath, "Directory to watch")
	flag.BoolVar(&cfg.Recursive, "recursive", cfg.Recursive, "Watch subdirectories")
	flag.IntVar(&cfg.DebounceMs, "debounce-ms", cfg.DebounceMs, "Debounce window in milliseconds")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (trace, debug, info, warn, error)")
	flag.IntVar(&cfg.Port, "grpc-port", cfg.Port, "Port for gRPC server, 0 disables")
	flag.IntVar(&cfg.HTTPPort, "http-port", cfg.HTTPPort, "Port for HTTP SSE server, 0 disables")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to SQLite journal, empty disables")
	flag.StringVar(&ignore, "ignore", ignore, "Comma separated ignore globs")
	flag.StringVar(&cfg.MetadataFile, "metadata-file", cfg.MetadataFile, "File name treated as metadata noise")
	flag.BoolVar(&cfg.SkipIgnoredRemovals, "skip-ignored-removals", cfg.SkipIgnoredRemovals, "Ignore noise paths when detecting removals")
	flag.IntVar(&cfg.TrackWorkers, "workers", cfg.TrackWorkers, "Content tracking workers")
	flag.Parse()
	cfg.IgnorePatterns = config.SplitList(ignore)

	logger := logging.New(cfg.LogLevel, os.Stderr)
	if err := run(cfg, logger); err != nil {
		logger.Error("fsclassify failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger hclog.Logger) error {
	matcher, err := patterns.Compile(cfg.IgnorePatterns)
	if err != nil {
		return err
	}

	cls := classifier.New(classifier.Options{
		MetadataFile:        cfg.MetadataFile,
		Ignore:              matcher,
		SkipIgnoredRemovals: cfg.SkipIgnoredRemovals,
	})

	fw, err := watcher.NewFileWatcher(watcher.Options{
		Window:  cfg.Window(),
		Matcher: matcher,
		Logger:  logger.Named("watcher"),
	})
	if err != nil {
		return err
	}
	if err := fw.AddPath(cfg.WatchPath, cfg.Recursive); err != nil {
		fw.Stop()
		return err
	}
	if err := fw.Start(); err != nil {
		return err
	}

	logger.Info("watching", "path", cfg.WatchPath, "recursive", cfg.Recursive, "window", cfg.Window())

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()

	eventHub := hub.NewHub(logger.Named("hub"))
	go eventHub.Run(hubCtx)

	sinks := []pipeline.Sink{pipeline.NewPrinter(os.Stdout), eventHub}

	var journal server.EventLog
	var contentTracker *tracker.ContentTracker
	if cfg.DBPath != "" {
		contentTracker, err = tracker.NewContentTracker(cfg.DBPath, cfg.TrackWorkers, logger.Named("tracker"))
		if err != nil {
			fw.Stop()
			return err
		}
		contentTracker.Start()
		journal = contentTracker.DB()
		sinks = append(sinks, contentTracker)
		logger.Info("journal enabled", "db", cfg.DBPath)
	}

	var httpServer *server.HTTPServer
	if cfg.HTTPPort > 0 {
		httpServer = server.NewHTTPServer(eventHub, cfg.HTTPPort, logger.Named("http"))
		go func() {
			if err := httpServer.Start(); err != nil {
				logger.Error("http server failed", "error", err)
			}
		}()
	}

	var grpcServer *server.GRPCServer
	if cfg.Port > 0 {
		svc := server.NewEventStreamService(eventHub, journal, logger.Named("grpc"))
		grpcServer = server.NewGRPCServer(svc, cfg.Port, logger.Named("grpc"))
		go func() {
			if err := grpcServer.Start(); err != nil {
				logger.Error("grpc server failed", "error", err)
			}
		}()
	}

	consumer := pipeline.NewConsumer(cls, logger.Named("classifier"))
	notifications := consumer.Run(fw.Results())

	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		pipeline.Dispatch(context.Background(), notifications, logger.Named("dispatch"), sinks...)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")

	// Closing the watcher ends the consumer, which ends dispatch
	if err := fw.Stop(); err != nil {
		logger.Warn("stop watcher", "error", err)
	}
	<-dispatched

	stopHub()
	<-eventHub.Done()

	if httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := httpServer.Stop(ctx); err != nil {
			logger.Warn("stop http server", "error", err)
		}
		cancel()
	}
	if grpcServer != nil {
		grpcServer.Stop()
	}
	if contentTracker != nil {
		if err := contentTracker.Close(); err != nil {
			logger.Warn("close journal", "error", err)
		}
	}

	logger.Info("stopped")
	return nil
}
