package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"famcal/internal/auth"
	"famcal/internal/config"
	"famcal/internal/notify"
	"famcal/internal/scheduler"
	"famcal/internal/server"
	"famcal/internal/storage"
	"famcal/pkg/logx"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	boot := logx.NewConsole("info")

	cfg, err := config.Load()
	if err != nil {
		boot.Error("config load failed", logx.Err(err))
		os.Exit(1)
	}

	log, logCloser, err := logx.New(logx.Config{
		Level:   cfg.LogLevel,
		Console: true,
		File:    logx.FileConfig{Enabled: cfg.LogFile != "", Path: cfg.LogFile},
	})
	if err != nil {
		boot.Error("logging setup failed", logx.Err(err))
		os.Exit(1)
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	store, err := storage.Open(storage.Config{
		Path:        cfg.DBPath,
		BusyTimeout: 5 * time.Second,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		log.Error("store open failed", logx.Err(err))
		os.Exit(1)
	}
	defer store.Close()

	if cfg.DevBypass {
		log.Warn("dev bypass enabled: launch credential enforcement is OFF")
	}
	verifier := auth.NewVerifier(cfg.BotToken, cfg.DevBypass, log.With(logx.String("comp", "auth")))
	codec := auth.NewTokenCodec(cfg.SessionSecret, nil)

	bot, err := notify.NewBot(cfg.BotToken)
	if err != nil {
		log.Error("telegram bot init failed", logx.Err(err))
		os.Exit(1)
	}
	gateway := notify.New(bot, log.With(logx.String("comp", "notify")))

	sched := scheduler.New(store, gateway, cfg.ScanInterval, log.With(logx.String("comp", "scheduler")))
	go sched.Run(ctx)

	srv := server.New(cfg.HTTPAddr, store, verifier, codec, log.With(logx.String("comp", "http")))
	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.Start() }()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	select {
	case <-ctx.Done():
	case err := <-srvErr:
		if err != nil {
			log.Error("http server failed", logx.Err(err))
		}
		cancel()
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", logx.Err(err))
	}
	log.Info("server stopped")
}
