package main

import (
	"context"
	"fmt"
	"image/png"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arkilian/rpftiles/internal/synth"
	"github.com/arkilian/rpftiles/pkg/types"
)

func newTileCmd(g *globalFlags) *cobra.Command {
	var (
		bbox    string
		width   int
		height  int
		output  string
		explain bool
	)

	cmd := &cobra.Command{
		Use:   "tile --bbox minLat,maxLat,minLon,maxLon [flags]",
		Short: "Synthesize one raster tile from the index",
		RunE: func(cmd *cobra.Command, args []string) error {
			box, err := parseBBox(bbox)
			if err != nil {
				return err
			}

			a, err := newApp(g, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			store, err := a.LoadIndex()
			if err != nil {
				return err
			}
			s, err := a.NewSynthesizer(store)
			if err != nil {
				return err
			}

			if explain {
				plan, err := s.Plan(box, width, height)
				if err != nil {
					return err
				}
				printPlan(cmd, store, plan)
			}

			img, err := s.Synthesize(context.Background(), box, width, height)
			if err != nil {
				return err
			}
			if img == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "no data in", box)
				return nil
			}

			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := png.Encode(f, img); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}

			a.Logger().Debug("tile written", zap.String("output", output), zap.Any("sources", a.SourceStats().Top(5)))
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %dx%d tile to %s\n", width, height, output)
			return nil
		},
	}

	cmd.Flags().StringVar(&bbox, "bbox", "", "Bounding box in degrees: minLat,maxLat,minLon,maxLon")
	cmd.Flags().IntVar(&width, "width", 512, "Tile width in pixels")
	cmd.Flags().IntVar(&height, "height", 512, "Tile height in pixels")
	cmd.Flags().StringVarP(&output, "output", "o", "tile.png", "Output PNG file")
	cmd.Flags().BoolVar(&explain, "explain", false, "Print the detail source chosen for each frame")
	_ = cmd.MarkFlagRequired("bbox")
	return cmd
}

func parseBBox(s string) (types.BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return types.BBox{}, fmt.Errorf("bbox must be minLat,maxLat,minLon,maxLon, got %q", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return types.BBox{}, fmt.Errorf("bbox: %w", err)
		}
		v[i] = f
	}
	return types.BBox{MinLat: v[0], MaxLat: v[1], MinLon: v[2], MaxLon: v[3]}, nil
}

func printPlan(cmd *cobra.Command, store interface {
	FilePath(types.Key) (string, bool)
}, plan []synth.Candidate) {
	out := cmd.OutOrStdout()
	for _, c := range plan {
		name, _ := store.FilePath(c.FileKey)
		fmt.Fprintf(out, "%-6s %-12s %7.1fx%-7.1f %s\n", c.FileKey, c.Source, c.FootprintX, c.FootprintY, name)
	}
}
