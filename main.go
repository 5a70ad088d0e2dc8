package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/varsilias/chat-relay/internal/api"
	"github.com/varsilias/chat-relay/internal/buildinfo"
	"github.com/varsilias/chat-relay/internal/chat"
	"github.com/varsilias/chat-relay/internal/config"
	"github.com/varsilias/chat-relay/internal/logging"
	"github.com/varsilias/chat-relay/internal/models"
	"github.com/varsilias/chat-relay/internal/ollama"
	"github.com/varsilias/chat-relay/internal/transcript"
	"github.com/varsilias/chat-relay/internal/usage"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logging.New("error", false).Error("config", "err", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogJSON)
	logger.Info("build", "version", buildinfo.Version, "commit", buildinfo.Commit, "built_at", buildinfo.BuiltAt)
	logger.Info("chat relay is listening", "addr", cfg.ListenAddr(), "ollama", cfg.OllamaURL, "default_model", cfg.DefaultModel)

	oc := ollama.NewClient(cfg.OllamaURL, logger)
	if cfg.WaitEnabled {
		logger.Info("waiting for Ollama", "timeout", cfg.WaitTimeout.String(), "interval", cfg.WaitInterval.String(), "models", cfg.WaitModels)
		ctxWait, cancel := context.WithTimeout(context.Background(), cfg.WaitTimeout)
		err := oc.WaitReady(ctxWait, cfg.WaitModels, cfg.WaitInterval)
		cancel()
		if err != nil {
			// Requests still go to the backend; failures surface per request.
			logger.Warn("Ollama wait gave up; serving anyway", "err", err.Error())
		} else {
			logger.Info("Ollama is ready (API + required models present)")
		}
	}

	var store usage.Store = usage.NewMemoryStore()
	if cfg.RedisURL != "" {
		rs, err := usage.NewRedisStore(cfg.RedisURL)
		if err != nil {
			logger.Error("redis usage store", "err", err)
			os.Exit(1)
		}
		defer rs.Close()
		store = rs
		logger.Info("usage totals kept in redis")
	}

	renderer, err := transcript.NewRenderer()
	if err != nil {
		logger.Error("transcript renderer init", "err", err)
		os.Exit(1)
	}

	relay := chat.NewRelay(logger, chat.NewOllamaEngine(oc), cfg.DefaultModel,
		chat.WithUsage(store),
		chat.WithTimeout(cfg.ChatTimeout),
	)

	h := api.NewHandlers(logger, relay, models.NewOllamaManager(oc), store, renderer, cfg.CORS)

	server := http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           api.NewRouter(logger, h, cfg.CORS),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      cfg.WriteTimeout, // 0 leaves long streams to CHAT_TIMEOUT
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	errChan := make(chan error, 1)
	go func() { errChan <- server.ListenAndServe() }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	case sig := <-sigChan:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	} else {
		logger.Info("server stopped")
	}
}
