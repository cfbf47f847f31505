package cmd

import (
	"fmt"

	"AmbientFM/core/audio"
	"AmbientFM/storage"

	"github.com/spf13/cobra"
)

var minioPrefix string

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "查看 MinIO 存储桶中的音轨",
	Long:  `按分类前缀列出存储桶中的对象，标记可以解码的音轨，并统计大小。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		client, err := newMinio(ctx, cfg)
		if err != nil {
			return fmt.Errorf("无法连接到MinIO: %w", err)
		}
		fmt.Println("MinIO连接成功！")

		prefixes := []string{minioPrefix}
		if minioPrefix == "" {
			prefixes = prefixes[:0]
			for _, c := range cfg.CatalogCategories {
				prefixes = append(prefixes, c+"/")
			}
		}

		for _, prefix := range prefixes {
			objects, err := client.ListObjects(ctx, prefix)
			if err != nil {
				return fmt.Errorf("列出 %s 失败: %w", prefix, err)
			}
			var total int64
			playable := 0
			fmt.Printf("\n%s\n", prefix)
			for _, o := range objects {
				mark := " "
				if audio.SupportedExt(o.Key) {
					mark = "*"
					playable++
				}
				total += o.Size
				fmt.Printf("  %s %-48s %10s  %s\n", mark, o.Name(), storage.FormatSize(o.Size), o.LastModified.Format("2006-01-02 15:04"))
			}
			fmt.Printf("  共 %d 个对象，可播放 %d 个，总大小 %s\n", len(objects), playable, storage.FormatSize(total))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "按前缀过滤，默认按分类逐个列出")

	minioCmd.Example = `  # 按分类列出
  ambientfm minio

  # 按前缀过滤
  ambientfm minio -p "Rain Makes Everything Better/"`
}
