package main

import (
	"fmt"
	"os"

	"guard/internal/api"
	"guard/internal/instruction"
	"guard/internal/processor"
	"guard/internal/runtime"
	"guard/internal/store"
	"guard/pkg/models"

	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "创建指标和网络状态槽位",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, logger, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			created, err := rt.InitializeAccounts(cmd.Context())
			if err != nil {
				return err
			}
			logger.Infof("已创建 %d 个槽位", len(created))

			programID := rt.ProgramID()
			return printJSON(map[string]string{
				"program_id":    programID.Hex(),
				"metrics":       models.MetricsAddress(programID).Hex(),
				"network_state": models.NetworkStateAddress(programID).Hex(),
			})
		},
	}
}

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "生成授权方密钥",
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := runtime.GenerateSigner()
			if err != nil {
				return err
			}
			return printJSON(map[string]string{
				"private_key": signer.PrivateKeyHex(),
				"authority":   signer.Authority().Hex(),
			})
		},
	}
}

func newAnalyzeCmd() *cobra.Command {
	var (
		target   string
		file     string
		dataSize uint64
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "分析目标程序",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			targetKey, err := models.ParsePubkey(target)
			if err != nil {
				return fmt.Errorf("--target 无效: %w", err)
			}
			signer, err := loadSigner()
			if err != nil {
				return err
			}

			rt, logger, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			// 上传目标程序二进制
			if file != "" {
				binary, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("读取目标程序失败: %w", err)
				}
				if err := rt.PutAccount(ctx, &store.Account{Key: targetKey, Data: binary}); err != nil {
					return err
				}
				logger.Infof("已上传目标程序 %s (%d 字节)", targetKey.Hex(), len(binary))
				if !cmd.Flags().Changed("data-size") {
					dataSize = uint64(len(binary))
				}
			} else if !cmd.Flags().Changed("data-size") {
				account, err := rt.Account(ctx, targetKey)
				if err != nil {
					return fmt.Errorf("读取目标程序失败: %w", err)
				}
				dataSize = uint64(len(account.Data))
			}

			analysisKey, err := rt.CreateAnalysisAccount(ctx, targetKey)
			if err != nil {
				return err
			}

			programID := rt.ProgramID()
			metas := []runtime.AccountMeta{
				{Key: targetKey},
				{Key: analysisKey, IsWritable: true},
				{Key: signer.Authority()},
				{Key: models.NetworkStateAddress(programID)},
			}
			outcome, err := submit(cmd, rt, signer, metas, instruction.AnalyzeContract{DataSize: dataSize})
			if err != nil {
				return err
			}
			return printJSON(map[string]interface{}{
				"analysis": api.NewAnalysisView(outcome.Analysis),
				"findings": outcome.Report.Findings,
			})
		},
	}

	cmd.Flags().StringVar(&target, "target", "", "目标程序账户")
	cmd.Flags().StringVar(&file, "file", "", "目标程序二进制文件，提供时先上传")
	cmd.Flags().Uint64Var(&dataSize, "data-size", 0, "声明的程序大小，默认取实际大小")
	cmd.MarkFlagRequired("target")
	return cmd
}

func newRecordCmd() *cobra.Command {
	var (
		gasUsed uint64
		success bool
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "记录一笔交易的gas消耗",
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := loadSigner()
			if err != nil {
				return err
			}
			rt, _, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			metas := []runtime.AccountMeta{
				{Key: models.MetricsAddress(rt.ProgramID()), IsWritable: true},
				{Key: signer.Authority()},
			}
			outcome, err := submit(cmd, rt, signer, metas, instruction.RecordMetrics{GasUsed: gasUsed, Success: success})
			if err != nil {
				return err
			}
			return printJSON(api.NewMetricsView(outcome.Metrics))
		},
	}

	cmd.Flags().Uint64Var(&gasUsed, "gas", 0, "gas消耗")
	cmd.Flags().BoolVar(&success, "success", true, "交易是否成功")
	cmd.MarkFlagRequired("gas")
	return cmd
}

func newNetworkCmd() *cobra.Command {
	var (
		tps       uint64
		blockTime uint64
	)

	cmd := &cobra.Command{
		Use:   "network",
		Short: "更新网络统计，首次调用的签名者成为授权方",
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := loadSigner()
			if err != nil {
				return err
			}
			rt, _, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			metas := []runtime.AccountMeta{
				{Key: models.NetworkStateAddress(rt.ProgramID()), IsWritable: true},
				{Key: signer.Authority()},
			}
			ix := instruction.UpdateNetworkStats{TransactionsPerSecond: tps, AverageBlockTime: blockTime}
			outcome, err := submit(cmd, rt, signer, metas, ix)
			if err != nil {
				return err
			}
			return printJSON(api.NewNetworkView(outcome.Network))
		},
	}

	cmd.Flags().Uint64Var(&tps, "tps", 0, "每秒交易数")
	cmd.Flags().Uint64Var(&blockTime, "block-time", 0, "平均出块时间")
	cmd.MarkFlagRequired("tps")
	cmd.MarkFlagRequired("block-time")
	return cmd
}

func newShowCmd() *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:       "show [analysis|metrics|network]",
		Short:     "查看记录",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"analysis", "metrics", "network"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, _, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			switch args[0] {
			case "analysis":
				targetKey, err := models.ParsePubkey(target)
				if err != nil {
					return fmt.Errorf("--target 无效: %w", err)
				}
				record, err := rt.LoadAnalysis(ctx, targetKey)
				if err != nil {
					return err
				}
				return printJSON(api.NewAnalysisView(record))
			case "metrics":
				record, err := rt.LoadMetrics(ctx)
				if err != nil {
					return err
				}
				return printJSON(api.NewMetricsView(record))
			default:
				record, err := rt.LoadNetworkState(ctx)
				if err != nil {
					return err
				}
				return printJSON(api.NewNetworkView(record))
			}
		},
	}

	cmd.Flags().StringVar(&target, "target", "", "目标程序账户 (show analysis)")
	return cmd
}

// submit 编码、签名并执行指令
func submit(cmd *cobra.Command, rt *runtime.Runtime, signer *runtime.Signer, metas []runtime.AccountMeta, ix instruction.Instruction) (*processor.Outcome, error) {
	data, err := instruction.Encode(ix)
	if err != nil {
		return nil, err
	}
	signed, err := runtime.SignInstruction(rt.ProgramID(), metas, data, signer)
	if err != nil {
		return nil, err
	}
	return rt.Submit(cmd.Context(), signed)
}
