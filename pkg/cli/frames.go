package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowscope/flowscope/pkg/domain/types"
	"github.com/flowscope/flowscope/pkg/storage"
)

// NewFramesCommand creates the frames command group.
func NewFramesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "frames",
		Short: "Inspect archived execution frames",
		Long:  `List and show execution frames from the local frame history archive.`,
	}

	cmd.AddCommand(newFramesListCommand())
	cmd.AddCommand(newFramesShowCommand())
	return cmd
}

func newFramesListCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent frames",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openHistory()
			if err != nil {
				return err
			}
			defer func() { _ = repo.Close() }()

			frames, err := repo.ListRecent(limit)
			if err != nil {
				return fmt.Errorf("failed to list frames: %w", err)
			}
			if len(frames) == 0 {
				fmt.Println("No archived frames found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTARTED\tDURATION\tREASON\tTRIGGER\tNODES\tOUTPUTS\tERRORS")
			for _, f := range frames {
				fmt.Fprintf(w, "%s\t%s\t%dms\t%s\t%s\t%d\t%d\t%d\n",
					f.ID,
					time.UnixMilli(f.StartedAt).Format(time.RFC3339),
					f.Stats.DurationMs,
					f.EndReason,
					f.TriggerNodeID,
					f.Stats.NodeCount,
					f.Stats.OutputsEmitted,
					f.Stats.ErroredNodes,
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of frames to display")
	return cmd
}

func newFramesShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <frame-id>",
		Short: "Display one archived frame as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openHistory()
			if err != nil {
				return err
			}
			defer func() { _ = repo.Close() }()

			f, err := repo.Load(types.FrameID(args[0]))
			if err != nil {
				return fmt.Errorf("failed to load frame: %w", err)
			}
			if f == nil {
				return fmt.Errorf("frame %q not found", args[0])
			}

			data, err := json.MarshalIndent(f, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to serialize frame: %w", err)
			}
			fmt.Println(string(data))
			return nil
		},
	}
	return cmd
}

// openHistory opens the frame archive configured for this invocation.
func openHistory() (*storage.SQLiteFrameRepository, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.History.Path != "" {
		return storage.NewSQLiteFrameRepositoryWithPath(cfg.History.Path)
	}
	return storage.NewSQLiteFrameRepository()
}
