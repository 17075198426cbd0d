package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const defaultConfigYAML = `# cookbot configuration
# Durations accept Go duration strings: 500ms, 1s, 1m30s.

kitchen:
  cook_seconds: 10        # ticks a bot needs per order
  tick_interval: 1s       # wall-clock time per tick
  check_invariants: false # validate every snapshot, log violations

journal:
  path: data/journal.log  # empty disables the journal
  buffer_size: 1          # events buffered before a write
  sync: false             # fsync every write

export:
  path: data/export.json  # empty disables exports
  interval: 1m            # 0 exports only on shutdown
  backups: 3              # previous exports to keep

metrics:
  enabled: true           # served on the HTTP listener at /metrics

http:
  enabled: true
  addr: ":8080"

grpc:
  enabled: true
  addr: ":50051"

log:
  level: info             # debug | info | warn | error
  format: text            # text | json
`

func buildInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Long: `Write the default configuration to the --config path.
Fails if the file already exists unless --force is passed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dest := configFile
			if !force {
				if _, err := os.Stat(dest); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", dest)
				} else if !errors.Is(err, os.ErrNotExist) {
					return err
				}
			}
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return fmt.Errorf("failed to create config dir: %w", err)
			}
			if err := os.WriteFile(dest, []byte(defaultConfigYAML), 0o644); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", dest)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}
