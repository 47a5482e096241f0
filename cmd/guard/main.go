package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"guard/internal/config"
	"guard/internal/logging"
	"guard/internal/runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configFile string
	verbose    bool
	privateKey string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "guard",
		Short:         "链上安全分析与指标程序",
		Long:          `对目标程序做启发式安全评分，记录交易gas指标和网络状态`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "配置文件路径，为空时使用默认配置")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "详细输出")
	rootCmd.PersistentFlags().StringVar(&privateKey, "key", os.Getenv("GUARD_KEY"), "授权方私钥 (十六进制，默认读取 GUARD_KEY)")

	rootCmd.AddCommand(
		newInitCmd(),
		newKeygenCmd(),
		newAnalyzeCmd(),
		newRecordCmd(),
		newNetworkCmd(),
		newShowCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "执行失败: %v\n", err)
		os.Exit(1)
	}
}

// openRuntime 加载配置并打开运行时
func openRuntime(ctx context.Context) (*runtime.Runtime, *logrus.Logger, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("加载配置失败: %w", err)
	}

	if verbose {
		cfg.Logging.Level = "debug"
	}
	// 命令行输出结果走stdout，日志写到stderr
	if cfg.Logging.Output == "" || cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "stderr"
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}

	rt, err := runtime.Bootstrap(ctx, cfg, logger, prometheus.NewRegistry())
	if err != nil {
		return nil, nil, err
	}
	return rt, logger, nil
}

// loadSigner 读取授权方私钥
func loadSigner() (*runtime.Signer, error) {
	if privateKey == "" {
		return nil, fmt.Errorf("未提供私钥，请使用 --key 或设置 GUARD_KEY")
	}
	return runtime.SignerFromHex(privateKey)
}

// printJSON 输出JSON到stdout
func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
