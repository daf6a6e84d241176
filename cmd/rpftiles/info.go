package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newInfoCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Describe and validate an index file",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(g, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			path := a.Config().Index.Path
			info, err := os.Stat(path)
			if err != nil {
				return err
			}
			store, err := a.LoadIndex()
			if err != nil {
				return err
			}

			props := store.Properties()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "index\t%s\n", path)
			fmt.Fprintf(w, "size\t%s\n", humanize.Bytes(uint64(info.Size())))
			fmt.Fprintf(w, "modified\t%s\n", humanize.Time(info.ModTime()))
			fmt.Fprintf(w, "root\t%s\n", props.RootPath)
			fmt.Fprintf(w, "data series\t%s\n", props.DataSeriesID)
			fmt.Fprintf(w, "description\t%s\n", props.Description)
			fmt.Fprintf(w, "bounding sector\t%s\n", props.BoundingSector)
			fmt.Fprintf(w, "frames\t%s\n", humanize.Comma(int64(store.Files().Len())))
			fmt.Fprintf(w, "wavelets\t%s\n", humanize.Comma(int64(store.Wavelets().Len())))
			fmt.Fprintf(w, "directories\t%s\n", humanize.Comma(int64(store.Directories().Len())))
			if err := w.Flush(); err != nil {
				return err
			}

			if err := store.Validate(); err != nil {
				return fmt.Errorf("index is inconsistent: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "references ok")
			return nil
		},
	}
}
