package cmd

import (
	"fmt"
	"os"

	"AmbientFM/config"
	"AmbientFM/logger"
	"AmbientFM/metrics"

	"github.com/spf13/cobra"
)

var (
	envFiles []string
	cfg      *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "ambientfm",
	Short: "AmbientFM 是一个双通道环境音循环播放服务",
	Long: `AmbientFM 为每个环境音分类维护一条播放通道，预先缓冲音轨，
在曲目之间淡入淡出，并通过 HTTP / WebSocket 提供控制接口。
不带子命令运行时等同于 serve。`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load(envFiles...)
		if err := logger.InitLogger(logger.Config{
			Level:      logger.ParseLevel(cfg.LogLevel),
			Console:    cfg.LogFormat == "console",
			OutputPath: cfg.LogFile,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		}); err != nil {
			return fmt.Errorf("初始化日志失败: %w", err)
		}
		metrics.RegisterMetrics()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env", nil, "额外加载的 .env 文件，可重复指定")
}
