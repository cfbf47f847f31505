package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"AmbientFM/core/catalog"

	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "列出目录源为每个分类挑选的音轨",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a := &app{cfg: cfg}
		defer a.close()

		var err error
		if cfg.CatalogSource == "minio" {
			objects, merr := newMinio(ctx, cfg)
			if merr != nil {
				return merr
			}
			a.supplier, err = a.newSupplier(ctx, objects)
		} else {
			a.supplier, err = a.newSupplier(ctx, nil)
		}
		if err != nil {
			return err
		}
		return printCatalog(ctx, a.supplier, cfg.CatalogCategories)
	},
}

func printCatalog(ctx context.Context, supplier catalog.Supplier, categories []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, category := range categories {
		tracks := supplier.ListTracks(ctx, category)
		fmt.Fprintf(w, "\n[%s] %d 条音轨\n", category, len(tracks))
		for i, t := range tracks {
			fmt.Fprintf(w, "  %d\t%s\t%s\t%s\n", i+1, t.Title, t.Artist, t.UniquePath)
		}
	}
	return w.Flush()
}

func init() {
	rootCmd.AddCommand(catalogCmd)
}
