package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arkilian/rpftiles/internal/builder"
	"github.com/arkilian/rpftiles/internal/config"
	"github.com/arkilian/rpftiles/internal/frame"
)

func newBuildCmd(g *globalFlags) *cobra.Command {
	var (
		workers     int
		series      string
		description string
		noMosaic    bool
		quiet       bool
	)

	cmd := &cobra.Command{
		Use:   "build [flags] <frame file or directory>...",
		Short: "Build a frame index, wavelet files and the coarse mosaic",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g, func(cfg *config.Config) {
				if cmd.Flags().Changed("workers") {
					cfg.Builder.Workers = workers
				}
				if series != "" {
					cfg.Index.DataSeries = series
				}
				if description != "" {
					cfg.Index.Description = description
				}
				if noMosaic {
					cfg.Builder.Mosaic.Enabled = false
				}
			})
			if err != nil {
				return err
			}
			defer a.Close()
			logger := a.Logger()

			files, err := collectFrames(args)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no frame files found")
			}

			var progress *progressListener
			if !quiet {
				progress = newProgressListener(cmd.ErrOrStderr())
			}

			b, err := a.NewBuilder(progressOrNil(progress))
			if err != nil {
				return err
			}

			// first signal stops the build cooperatively; units in flight finish
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				if sig, ok := <-sigCh; ok {
					logger.Warn("stopping build", zap.String("signal", sig.String()))
					b.Stop()
				}
			}()

			cfg := a.Config()
			start := time.Now()
			store, err := b.Build(context.Background(), builderRequest(cfg, files))
			if progress != nil {
				progress.Wait(err != nil)
			}
			if err != nil {
				return err
			}

			size := uint64(0)
			if info, statErr := os.Stat(cfg.Index.Path); statErr == nil {
				size = uint64(info.Size())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %s frames (%s wavelets) into %s (%s) in %s\n",
				humanize.Comma(int64(store.Files().Len())),
				humanize.Comma(int64(store.Wavelets().Len())),
				cfg.Index.Path, humanize.Bytes(size),
				time.Since(start).Round(time.Millisecond))
			fmt.Fprintf(cmd.OutOrStdout(), "bounding sector %s\n", store.Properties().BoundingSector)
			return nil
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 1, "Worker pool size; 1 builds serially")
	cmd.Flags().StringVar(&series, "series", "", "Data series identifier recorded in the index")
	cmd.Flags().StringVar(&description, "description", "", "Description recorded in the index")
	cmd.Flags().BoolVar(&noMosaic, "no-mosaic", false, "Skip the coarse mosaic phase")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not render progress bars")
	return cmd
}

// collectFrames expands directories into the frame files beneath them.
// Sidecars and hidden files are skipped.
func collectFrames(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		pieces := make(map[string]bool)
		var found []string
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			name := d.Name()
			if d.IsDir() {
				if path != arg && strings.HasPrefix(name, ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasPrefix(name, ".") {
				return nil
			}
			if strings.HasSuffix(name, frame.SidecarSuffix) {
				// rasters a sidecar names as pieces are decoded with their frame
				if sc, err := frame.ReadSidecar(path); err == nil {
					for _, p := range sc.Pieces {
						pieces[strings.ToUpper(filepath.Join(filepath.Dir(path), p))] = true
					}
				}
				return nil
			}
			found = append(found, path)
			return nil
		})
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			if !pieces[strings.ToUpper(f)] {
				files = append(files, f)
			}
		}
	}
	return files, nil
}

func builderRequest(cfg *config.Config, files []string) builder.Request {
	return builder.Request{
		IndexFile:    cfg.Index.Path,
		DataSeriesID: cfg.Index.DataSeries,
		Description:  cfg.Index.Description,
		Files:        files,
	}
}
