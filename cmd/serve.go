package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"AmbientFM/logger"
	"AmbientFM/server"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动播放器和 HTTP 控制接口",
	Long:  `初始化所有分类通道，启动目录监听，并在 HTTP_ADDR 上提供状态、控制和 WebSocket 推送接口。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	a.watchCatalog(ctx)
	go a.initialize(ctx)

	srv := server.New(a.player)
	if err := srv.ListenAndServe(ctx, cfg.HTTPAddr); err != nil {
		logger.Error("HTTP 服务异常退出", logger.ErrorField(err))
		return err
	}
	logger.Info("服务已停止")
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
