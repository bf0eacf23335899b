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

	"github.com/joho/godotenv"

	"codeloft/internal/agent"
	"codeloft/internal/config"
	"codeloft/internal/engine"
	"codeloft/internal/llm"
	"codeloft/internal/llm/mockclient"
	"codeloft/internal/logging"
	"codeloft/internal/scrape"
	"codeloft/internal/server"
	"codeloft/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "codeloft: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "codeloft.yaml", "path to the yaml config file")
		addr       = flag.String("addr", "", "listen address override")
		dbPath     = flag.String("db", "", "database path override")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		logging.DevLog("no .env file found, reading from environment")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}
	logging.Setup(cfg.LogPath)

	if cfg.InternalKey == "" {
		return errors.New("CODELOFT_INTERNAL_KEY must be set")
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()
	sys := store.NewSystem(st, cfg.InternalKey)

	var client llm.Client
	switch cfg.Provider {
	case "mock":
		client = mockclient.New()
	default:
		client, err = llm.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.BaseURL)
		if err != nil {
			return err
		}
	}

	router := &agent.Router{
		Client:        client,
		Model:         cfg.Model,
		TitleModel:    cfg.TitleModel,
		Temperature:   cfg.Temperature,
		MaxIterations: cfg.MaxIterations,
	}

	eng := engine.New(engine.Options{
		Store:       st,
		System:      sys,
		InternalKey: cfg.InternalKey,
		Router:      router,
		Scraper:     scrape.NewHTTPScraper(cfg.ScrapeTimeout()),
		SettleDelay: cfg.SettleDelay(),
		RecentLimit: cfg.RecentMessageLimit,
	})
	eng.Start(cfg.WorkerCount)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.New(st, eng).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.UserLog("listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		eng.Stop()
		return err
	case sig := <-stop:
		logging.UserLog("received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.ErrorLog("http shutdown: %v", err)
	}
	eng.Stop()
	return nil
}
