package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"luxmeter-gateway/internal/config"
	"luxmeter-gateway/internal/logger"
	"luxmeter-gateway/internal/server"
	"luxmeter-gateway/internal/usecase/emulator"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.Log)
	defer log.Sync()

	h := emulator.NewHandler(cfg.Emulator, log)
	srv := server.NewTCPServer(cfg.Emulator, log, h)

	go func() {
		if err := srv.Start(context.Background()); err != nil {
			log.Fatal("Emulator failed", zap.Error(err))
		}
	}()

	// 优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}
