package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"ctacore/internal/app"
	"ctacore/internal/config"
	"ctacore/internal/logger"
)

func main() {
	cfgPath := os.Getenv("CTACORE_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("读取配置失败: %v", err)
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("初始化应用失败: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Infof("ctacore starting, config=%s", cfgPath)
	if err := a.Run(ctx); err != nil {
		log.Fatalf("运行失败: %v", err)
	}
}
