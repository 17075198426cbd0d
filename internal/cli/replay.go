package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ChuLiYu/cookbot/internal/controller"
	"github.com/ChuLiYu/cookbot/internal/projection"
	"github.com/ChuLiYu/cookbot/internal/snapshot"
	"github.com/ChuLiYu/cookbot/internal/storage/wal"
	"github.com/ChuLiYu/cookbot/pkg/types"
)

func buildReplayCommand() *cobra.Command {
	var exportPath string
	var cookSeconds int
	var dump, asJSON bool

	cmd := &cobra.Command{
		Use:   "replay [journal]...",
		Short: "Rebuild a kitchen from an export and journal files",
		Long: `Rebuild the kitchen recorded by an export and the journal files written
after it, oldest first. Without --export the kitchen starts empty. Without
journal arguments the archives of the configured journal are read in
sequence order, followed by the journal itself. A journal that spans
several runs rebuilds the last one.

The result is printed for auditing; it is never loaded into a kitchen.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			base := types.ExportData{CookSeconds: cookSeconds}
			if exportPath != "" {
				data, err := snapshot.NewManager(exportPath).Load()
				if err != nil {
					return fmt.Errorf("failed to load export: %w", err)
				}
				base = data
			}

			journals := args
			if len(journals) == 0 {
				cfg, err := currentConfig()
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				if cfg.Journal.Path == "" {
					return errors.New("no journal given and journal.path is empty")
				}
				archives, err := wal.Archives(cfg.Journal.Path)
				if err != nil {
					return fmt.Errorf("failed to list archives: %w", err)
				}
				journals = append(archives, cfg.Journal.Path)
				if base.CookSeconds == 0 {
					base.CookSeconds = cfg.Kitchen.CookSeconds
				}
			}

			for _, path := range journals {
				if err := wal.ValidateWAL(path); err != nil {
					return fmt.Errorf("journal %s: %w", path, err)
				}
				if dump {
					stats, err := wal.GetWALStats(path)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s: %d events, seq %d-%d\n", path, stats.TotalEvents, stats.FirstSeq, stats.LastSeq)
					if err := wal.DumpWAL(path, out); err != nil {
						return err
					}
				}
			}

			res, err := controller.Replay(base, journals...)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res.State)
			}
			fmt.Fprintf(out, "replayed %d events from %d journals (skipped %d), last seq %d, runs %d\n",
				res.Applied, res.Journals, res.Skipped, res.LastSeq, res.Runs)
			fmt.Fprint(out, projection.Render(projection.Project(res.State)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&exportPath, "export", "e", "", "export file to start from")
	cmd.Flags().IntVar(&cookSeconds, "cook-seconds", 0, "cook time when starting without an export (default: config)")
	cmd.Flags().BoolVar(&dump, "dump", false, "print every journal event before replaying")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the rebuilt snapshot as JSON")
	return cmd
}
