package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/confix/confix/pkg/stores"
)

const defaultStorePath = "confix.db"

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect past resolution runs",
		Long: `Inspect the resolution history recorded in the store.

Each run records its status, the finalized environment, the providers it
applied, and the outcome of every request.`,
	}

	cmd.AddCommand(newHistoryListCommand())
	cmd.AddCommand(newHistoryShowCommand())

	return cmd
}

func historyStore(ctx context.Context) (*stores.SQLiteStore, error) {
	path := storePath
	if path == "" {
		path = defaultStorePath
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, fmt.Errorf("failed to create history store: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to open history store %s: %w", path, err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to migrate history store: %w", err)
	}
	return store, nil
}

func newHistoryListCommand() *cobra.Command {
	var (
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent resolution runs",
		Example: `  # List the 20 most recent runs
  confix history list

  # Page through older runs
  confix history list --limit 50 --offset 50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := historyStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(ctx, limit, offset)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			if jsonOutput {
				encoded, err := json.MarshalIndent(runs, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(encoded))
				return nil
			}

			if len(runs) == 0 {
				fmt.Println("No runs recorded")
				return nil
			}
			for _, run := range runs {
				line := fmt.Sprintf("%s  %-9s  %s  %s",
					run.ID, run.Status, run.StartedAt.Format(time.RFC3339), run.ManifestPath)
				if run.Error != nil {
					line += "  (" + *run.Error + ")"
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "runs to skip")

	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	var showEvents bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run with its request outcomes",
		Example: `  # Show a run
  confix history show 5aa3efbe-08b2-4f3c-b3f2-c51e28b0c0fb

  # Include the run's event log
  confix history show 5aa3efbe-08b2-4f3c-b3f2-c51e28b0c0fb --events`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runID := args[0]

			store, err := historyStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(ctx, runID)
			if err != nil {
				return fmt.Errorf("failed to load run: %w", err)
			}

			augments, err := store.ListAugmentsByRun(ctx, runID)
			if err != nil {
				return fmt.Errorf("failed to load augments: %w", err)
			}

			var events []*stores.Event
			if showEvents {
				events, err = store.GetEvents(ctx, &runID, nil, 200, 0)
				if err != nil {
					return fmt.Errorf("failed to load events: %w", err)
				}
			}

			if jsonOutput {
				out := struct {
					Run      *stores.Run       `json:"run"`
					Augments []*stores.Augment `json:"augments"`
					Events   []*stores.Event   `json:"events,omitempty"`
				}{run, augments, events}
				encoded, err := json.MarshalIndent(out, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(encoded))
				return nil
			}

			fmt.Printf("Run:      %s\n", run.ID)
			fmt.Printf("Manifest: %s\n", run.ManifestPath)
			fmt.Printf("Status:   %s\n", run.Status)
			fmt.Printf("Started:  %s\n", run.StartedAt.Format(time.RFC3339))
			if run.CompletedAt != nil {
				fmt.Printf("Finished: %s\n", run.CompletedAt.Format(time.RFC3339))
			}
			if run.Error != nil {
				fmt.Printf("Error:    %s\n", *run.Error)
			}
			if run.Providers != nil {
				fmt.Printf("Providers: %s\n", *run.Providers)
			}

			if len(augments) > 0 {
				fmt.Println("\nRequests:")
				for _, a := range augments {
					line := fmt.Sprintf("  %-9s %s (%s)", a.Status, a.SpecName, a.Kind)
					if a.Provider != nil {
						line += " via " + *a.Provider
					}
					if a.Component != nil {
						line += " -> $" + *a.Component
					}
					if a.Reason != nil {
						line += ": " + *a.Reason
					}
					fmt.Println(line)
				}
			}

			if run.Environment != nil {
				fmt.Println("\nEnvironment:")
				var vars map[string]any
				if err := json.Unmarshal([]byte(*run.Environment), &vars); err == nil {
					encoded, _ := json.MarshalIndent(vars, "  ", "  ")
					fmt.Printf("  %s\n", string(encoded))
				} else {
					fmt.Printf("  %s\n", *run.Environment)
				}
			}

			if len(events) > 0 {
				fmt.Println("\nEvents:")
				for _, ev := range events {
					fmt.Printf("  %s  %-7s  %s\n", ev.Timestamp.Format(time.RFC3339), ev.Level, ev.Message)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showEvents, "events", false, "include the run's event log")

	return cmd
}
