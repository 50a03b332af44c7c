package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/confix/confix/pkg/stores"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newInitCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a Confix workspace",
		Long: `Initialize a Confix workspace with a starter manifest, a provider
catalog directory, a policies directory, and the history database.

The starter files resolve a host C toolchain and are meant to be edited.`,
		Example: `  # Initialize in the current directory
  confix init

  # Initialize into a subdirectory
  confix init --dir ./build-env`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Info().
				Str("dir", dir).
				Msg("Initializing workspace")

			ctx := context.Background()

			fmt.Printf("Initializing Confix workspace in %s\n\n", dir)

			// Step 1: Create directory structure
			dirs := []string{
				dir,
				filepath.Join(dir, "providers"),
				filepath.Join(dir, "policies"),
			}

			for _, d := range dirs {
				if err := os.MkdirAll(d, 0755); err != nil {
					return fmt.Errorf("failed to create directory %s: %w", d, err)
				}
				fmt.Printf("✓ Created directory: %s\n", d)
			}

			// Step 2: Initialize history database
			dbPath := filepath.Join(dir, defaultStorePath)
			store, err := stores.NewSQLiteStore(stores.Config{
				Path: dbPath,
			})
			if err != nil {
				return fmt.Errorf("failed to create store: %w", err)
			}
			defer store.Close()

			if err := store.Init(ctx); err != nil {
				return fmt.Errorf("failed to initialize store: %w", err)
			}

			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}

			fmt.Printf("✓ Initialized history database: %s\n", dbPath)

			// Step 3: Write the starter manifest
			manifestPath := filepath.Join(dir, "build.cue")
			if err := writeIfAbsent(manifestPath, starterManifest); err != nil {
				return err
			}
			fmt.Printf("✓ Created manifest: %s\n", manifestPath)

			// Step 4: Write an example provider
			providerPath := filepath.Join(dir, "providers", "gcc.yaml")
			if err := writeIfAbsent(providerPath, starterProvider); err != nil {
				return err
			}
			fmt.Printf("✓ Created provider: %s\n", providerPath)

			// Done
			fmt.Printf("\n✅ Workspace initialized successfully!\n\n")
			fmt.Printf("Next steps:\n")
			fmt.Printf("  1. Edit the manifest:\n")
			fmt.Printf("     %s\n\n", manifestPath)
			fmt.Printf("  2. Resolve the environment:\n")
			fmt.Printf("     confix resolve %s\n\n", manifestPath)

			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "workspace directory")

	return cmd
}

// writeIfAbsent writes content unless the file already exists.
func writeIfAbsent(path, content string) error {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("✓ Already exists, keeping: %s\n", path)
		return nil
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

const starterManifest = `manifest: {
	name:    "starter"
	version: "1.0"
}

settings: {
	pre: {}
	post: {}
}

providers: {
	paths: ["providers"]
}

requests: {
	compiler: {
		kind: "component"
		components: ["CC"]
		checks: [{type: "link"}]
	}
}

policy: {
	enabled: true
}

store: {
	path: "confix.db"
}
`

const starterProvider = `name: gcc

sets:
  CC: gcc
  LINK: gcc

defaults:
  TARGET_OBJFMT: ELF

appends:
  TOOLS: [gcc]
`
