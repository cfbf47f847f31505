package cmd

import (
	"fmt"

	"AmbientFM/core/catalog"
	"AmbientFM/db"
	"AmbientFM/model"
	"AmbientFM/repository"

	"github.com/spf13/cobra"
)

var seedDir string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "创建 MySQL 音轨表，可选从本地目录导入音轨",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := db.ConnectGormDB(cfg); err != nil {
			return err
		}
		defer db.CloseGormDB()

		if err := db.AutoMigrateModels(&model.TrackRecord{}); err != nil {
			return err
		}
		fmt.Println("数据表迁移完成")

		if seedDir == "" {
			return nil
		}
		repo := repository.NewGormTrackRepository(db.GormDB)
		local := catalog.NewLocalSupplier(seedDir, 0)
		created := 0
		for _, c := range cfg.CatalogCategories {
			for _, t := range local.ListTracks(cmd.Context(), c) {
				rec := &model.TrackRecord{
					Category:   t.Category,
					Title:      t.Title,
					Artist:     t.Artist,
					Locator:    t.Locator,
					UniquePath: t.UniquePath,
					State:      1,
				}
				if err := repo.Create(cmd.Context(), rec); err != nil {
					fmt.Printf("  跳过 %s: %v\n", t.UniquePath, err)
					continue
				}
				created++
			}
		}
		fmt.Printf("已导入 %d 条音轨\n", created)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().StringVar(&seedDir, "seed", "", "从该本地目录导入音轨")
}
