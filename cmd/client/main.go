package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"luxmeter-gateway/internal/config"
	"luxmeter-gateway/internal/infra/transport"
	"luxmeter-gateway/internal/logger"
	"luxmeter-gateway/internal/usecase/t10a"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	address := flag.String("tcp", "", "connect to a serial bridge or emulator at host:port instead of the configured transport")
	head := flag.Int("head", -1, "receptor head (default from config)")
	timeout := flag.Duration("timeout", 10*time.Second, "overall timeout")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if *address != "" {
		cfg.Transport.Type = "tcp"
		cfg.Transport.TCP.Address = *address
	}
	if *head >= 0 {
		cfg.Meter.ReceptorHead = *head
	}

	log := logger.New(cfg.Log)
	defer log.Sync()

	open := func() (t10a.Conn, error) {
		return transport.Open(cfg.Transport, log)
	}
	poller := t10a.NewPoller(open, cfg.Meter, nil, nil, log)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	fmt.Printf(">> 读取受光头 %02d (%s)...\n", cfg.Meter.ReceptorHead, cfg.Transport.Type)
	rec, err := poller.Once(ctx)
	if err != nil {
		fmt.Printf("测量失败 [%s]: %v\n", t10a.KindOf(err), err)
		os.Exit(1)
	}

	fmt.Printf("<< 状态 %q\n", rec.Status)
	for i, r := range rec.Readings {
		fmt.Printf("   测量值 %d: %s\n", i+1, r)
	}
	fmt.Printf("   照度: %s lx\n", rec.Illuminance)
}
