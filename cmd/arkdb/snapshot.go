package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/arkilian/arkdb/internal/app"
	"github.com/arkilian/arkdb/internal/config"
	"github.com/arkilian/arkdb/internal/snapshot"
	"github.com/arkilian/arkdb/pkg/arkdb"
	"github.com/arkilian/arkdb/pkg/types"
)

func withDB(ctx context.Context, cfg *config.Config, fn func(*arkdb.DB) error) error {
	db, err := app.OpenDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

func newExportCmd(opts *globalOptions) *cobra.Command {
	var (
		out        string
		tables     []string
		compress   bool
		noMetadata bool
		toStorage  bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export tables to a snapshot file or the snapshot storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("compress") {
				cfg.Snapshot.Compress = compress
			}
			if out == "" && !toStorage {
				return fmt.Errorf("one of --out or --to-storage is required")
			}
			ctx := cmd.Context()

			return withDB(ctx, cfg, func(db *arkdb.DB) error {
				snap, err := db.Export(ctx, arkdb.ExportOptions{Tables: tables, IncludeMetadata: !noMetadata})
				if err != nil {
					return err
				}
				if toStorage {
					store, err := app.OpenStorage(ctx, cfg)
					if err != nil {
						return err
					}
					format := app.SnapshotFormat(cfg)
					path := snapshot.ObjectName(cfg.Snapshot.Prefix, db.Name(), time.Now(), format)
					if err := snapshot.Save(ctx, store, path, snap, format, false); err != nil {
						return err
					}
					cmd.Printf("exported %d rows to %s\n", snap.RowCount(), path)
					return nil
				}

				format := snapshot.FormatForPath(out)
				if cfg.Snapshot.Compress {
					format = snapshot.FormatSnappy
				}
				data, err := snapshot.Encode(snap, format)
				if err != nil {
					return err
				}
				if err := os.WriteFile(out, data, 0644); err != nil {
					return fmt.Errorf("failed to write %s: %w", out, err)
				}
				cmd.Printf("exported %d rows to %s (%s)\n", snap.RowCount(), out, humanize.Bytes(uint64(len(data))))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Snapshot file to write")
	cmd.Flags().BoolVar(&toStorage, "to-storage", false, "Save to the configured snapshot storage")
	cmd.Flags().StringSliceVar(&tables, "tables", nil, "Tables to export (default all)")
	cmd.Flags().BoolVar(&compress, "compress", false, "Write a snappy-compressed snapshot")
	cmd.Flags().BoolVar(&noMetadata, "no-metadata", false, "Omit the metadata block")
	return cmd
}

func newImportCmd(opts *globalOptions) *cobra.Command {
	var (
		mode        string
		tables      []string
		fromStorage bool
	)
	cmd := &cobra.Command{
		Use:   "import <snapshot>",
		Short: "Import a snapshot file or storage object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var snap *types.Snapshot
			if fromStorage {
				store, err := app.OpenStorage(ctx, cfg)
				if err != nil {
					return err
				}
				if snap, err = snapshot.Load(ctx, store, args[0]); err != nil {
					return err
				}
			} else {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", args[0], err)
				}
				if snap, err = snapshot.Decode(data, snapshot.FormatForPath(args[0])); err != nil {
					return err
				}
			}

			return withDB(ctx, cfg, func(db *arkdb.DB) error {
				res, err := db.Import(ctx, snap, arkdb.ImportOptions{Tables: tables, Mode: types.ImportMode(mode)})
				if err != nil {
					return err
				}
				cmd.Printf("imported %d rows\n", res.Rows)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(types.ImportMerge), "Import mode: merge, replace or upsert")
	cmd.Flags().StringSliceVar(&tables, "tables", nil, "Tables to import (default all declared)")
	cmd.Flags().BoolVar(&fromStorage, "from-storage", false, "Read the snapshot from the configured storage")
	return cmd
}

func newTopologyCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "topology",
		Short: "Print the provisioned host topology as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return withDB(cmd.Context(), cfg, func(db *arkdb.DB) error {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]interface{}{
					"name":     db.Name(),
					"version":  db.Version(),
					"topology": db.Topology(),
				})
			})
		},
	}
}
