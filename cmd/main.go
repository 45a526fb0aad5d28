package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/subhub/youtube-subtitle-hub/internal/config"
	"github.com/subhub/youtube-subtitle-hub/internal/service"
	"github.com/subhub/youtube-subtitle-hub/pkg/log"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}
	log.InitLogger(log.ParseLevel(cfg.Server.LogLevel))

	app, err := service.New(cfg)
	if err != nil {
		log.Fatal("Failed to initialize application: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("Server exited: %v", err)
	}
}
