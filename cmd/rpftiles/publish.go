package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arkilian/rpftiles/internal/builder"
	"github.com/arkilian/rpftiles/internal/storage"
)

func newPublishCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Upload the index, wavelet files and mosaic to the configured storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := context.Background()
			store, err := a.LoadIndex()
			if err != nil {
				return err
			}
			p, err := a.NewPublisher(ctx)
			if err != nil {
				return err
			}

			cfg := a.Config()
			res, err := p.Publish(ctx, store, cfg.Index.Path, cfg.Builder.Mosaic.Path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %d objects (%s) to %s storage\n",
				res.Objects, humanize.Bytes(uint64(res.Bytes)), cfg.Storage.Type)
			return nil
		},
	}
}

func newPullCmd(g *globalFlags) *cobra.Command {
	var (
		dest      string
		overwrite bool
	)

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Download a published index with its wavelet files and mosaic",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := context.Background()
			st, err := a.ObjectStorage(ctx)
			if err != nil {
				return err
			}
			objects, err := st.ListObjects(ctx, "")
			if err != nil {
				return err
			}

			// index and mosaic first so a partial pull is still usable
			priority := make([]int, len(objects))
			for i, o := range objects {
				switch {
				case o == builder.IndexObject:
					priority[i] = 0
				case o == builder.MosaicObject:
					priority[i] = 1
				case strings.HasPrefix(o, builder.WaveletPrefix):
					priority[i] = 2
				default:
					priority[i] = 3
				}
			}

			if err := os.MkdirAll(dest, 0755); err != nil {
				return err
			}
			d, err := a.NewDownloader(ctx, dest)
			if err != nil {
				return err
			}
			res, err := d.Download(ctx, &storage.BatchRequest{
				ObjectPaths: objects,
				Priority:    priority,
				Overwrite:   overwrite,
			})
			if err != nil {
				return err
			}

			for obj, dlErr := range res.Errors {
				a.Logger().Warn("pull: download failed", zap.String("object", obj), zap.Error(dlErr))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "downloaded %d, skipped %d, failed %d into %s\n",
				res.Downloads, res.Skipped, len(res.Errors), dest)
			if len(res.Errors) > 0 {
				return fmt.Errorf("%d objects failed to download", len(res.Errors))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dest, "dest", "pulled", "Destination directory")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Download objects that already exist locally")
	return cmd
}
