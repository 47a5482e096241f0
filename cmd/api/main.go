package main

import (
	"context"
	"flag"
	"os"

	"guard/internal/api"
	"guard/internal/config"
	"guard/internal/logging"
	"guard/internal/runtime"
	"guard/internal/shutdown"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

var (
	configPath = flag.String("config", "", "配置文件路径，为空时使用默认配置")
	port       = flag.Int("port", 0, "API 服务端口，覆盖配置文件")
	verbose    = flag.Bool("verbose", false, "详细输出")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("加载配置失败: %v", err)
	}
	if *port > 0 {
		cfg.API.Port = *port
	}
	if *verbose {
		cfg.Logging.Level = "debug"
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		logrus.Fatalf("创建日志器失败: %v", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	rt, err := runtime.Bootstrap(context.Background(), cfg, logger, registry)
	if err != nil {
		logger.Fatalf("初始化运行时失败: %v", err)
	}

	server := api.NewServer(rt, cfg, registry, logger)

	// 设置了数据库时启用配置管理接口
	if dsn := os.Getenv("GUARD_DB_DSN"); dsn != "" {
		dbConfig, err := config.NewDatabaseConfig(dsn, logger)
		if err != nil {
			logger.Fatalf("连接配置数据库失败: %v", err)
		}
		server.SetConfigManager(api.NewConfigManager(dbConfig, logger))
		defer dbConfig.Close()
	}

	graceful := shutdown.NewGracefulShutdown(0, logger)
	graceful.Register("api-server", shutdown.OrderStopAcceptingRequests, server.Stop)
	graceful.Register("runtime", shutdown.OrderCloseStore, func(ctx context.Context) error {
		return rt.Close()
	})
	graceful.Start()

	go func() {
		if err := server.Start(); err != nil {
			logger.Errorf("API服务器异常退出: %v", err)
			graceful.Shutdown()
		}
	}()

	if err := graceful.Wait(); err != nil {
		logger.Errorf("停机过程中发生错误: %v", err)
	}
	logger.Info("服务器已关闭")
}
