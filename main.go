package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var (
	configPath = flag.String("config", "", "path to config file (default: config.yml in . or ./configs)")
	envFile    = flag.String("env_file", ".env", "dotenv file loaded before the config")
	runOnce    = flag.Bool("once", false, "run a single ingestion cycle and exit")
)

func main() {
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "error loading %s: %v\n", *envFile, err)
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := newLogger(cfg.Logging)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("transit tracker stopped")
	}
}

func run(cfg *Config, log *logrus.Logger) error {
	loc, err := time.LoadLocation(cfg.Display.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone: %w", err)
	}

	store, err := OpenStore(cfg.Store.Path, cfg.Store.Table, log)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	fetcher, err := NewFetcher(cfg.Feed, log)
	if err != nil {
		return err
	}
	ingestor := NewIngestor(fetcher, store, cfg.Freshness.Window(), log)

	if *runOnce {
		res := ingestor.RunCycle(context.Background())
		if res.Failed {
			return errors.New("ingestion cycle failed to store its batch")
		}
		return nil
	}

	var cache SnapshotCache
	if cfg.Redis.Addr != "" {
		client, err := NewRedisClient(cfg.Redis)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		cache = NewRedisSnapshotCache(client, cfg.Redis.TTL)
	}

	views := newViewBuilder(NewSnapshotReader(store, loc), loc, cfg.Display.PrimaryRegion)
	hub := newWsHub(func(ctx context.Context) (*LiveView, error) {
		return views.Live(ctx, "")
	}, log)
	poll := newPoller(ingestor, cfg.Poll.Interval, log)
	poll.onCycle(livePublisher(views, cache, hub, log))

	pctx, pcancel := context.WithCancel(context.Background())
	defer pcancel()

	srv := newServer(&apiHandler{
		ctx:    pctx,
		views:  views,
		cache:  cache,
		poller: poll,
		hub:    hub,
		log:    log,
	}, log)

	go func() {
		log.Infof("server starting on http://localhost:%d/", cfg.Server.Port)
		if err := srv.Start(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	if cfg.Poll.Enabled {
		go poll.run(pctx)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	log.Info("shutdown initiated...")

	pcancel()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("HTTP server shutdown error")
	} else {
		log.Info("HTTP server shut down successfully")
	}
	return nil
}
