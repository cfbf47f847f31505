package cmd

import (
	"fmt"

	"AmbientFM/cache"

	"github.com/spf13/cobra"
)

var redisFlush bool

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "检查 Redis 连接，或清空目录列表缓存",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Redis配置: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)

		if err := cache.ConnectRedis(cfg); err != nil {
			return fmt.Errorf("无法连接到Redis: %w", err)
		}
		defer func() {
			if err := cache.CloseRedis(); err != nil {
				fmt.Printf("关闭Redis连接时发生错误: %v\n", err)
			}
		}()
		fmt.Println("Redis连接成功！")

		catalogCache := cache.NewCatalogCache()
		for _, c := range cfg.CatalogCategories {
			tracks, ok, err := catalogCache.GetTracks(cmd.Context(), c)
			switch {
			case err != nil:
				fmt.Printf("  %-32s 读取失败: %v\n", c, err)
			case ok:
				fmt.Printf("  %-32s 已缓存 %d 条\n", c, len(tracks))
			default:
				fmt.Printf("  %-32s 未缓存\n", c)
			}
		}

		if redisFlush {
			n, err := catalogCache.Flush(cmd.Context())
			if err != nil {
				return fmt.Errorf("清空目录缓存失败: %w", err)
			}
			fmt.Printf("已删除 %d 个目录缓存键\n", n)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
	redisCmd.Flags().BoolVar(&redisFlush, "flush", false, "删除所有目录列表缓存")
}
