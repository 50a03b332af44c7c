package commands

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/confix/confix/pkg/config"
	"github.com/confix/confix/pkg/resolver"
)

func newListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [manifest...]",
		Short: "List what a manifest would request without resolving",
		Long: `List the components, libraries, programs, and requirements a manifest
would request, without touching providers or running any checks.

The session runs in listing mode: every request records its name and
category and resolution is skipped entirely.`,
		Example: `  # List the requests in a manifest
  confix list build.cue`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			parser := config.NewCUEParser()

			mc, err := loadManifest(ctx, parser, args)
			if err != nil {
				return err
			}

			listing := resolver.NewListing()
			session, err := resolver.Begin(nil, nil, &resolver.Options{
				Logger:  zerolog.Nop(),
				Listing: listing,
			})
			if err != nil {
				return err
			}
			defer session.Discard()

			for _, req := range mc.Requests {
				if _, err := addRequest(ctx, session, nil, req, ""); err != nil {
					return fmt.Errorf("request %s: %w", req.Name, err)
				}
			}

			if jsonOutput {
				out := make(map[string][]string)
				for _, category := range listing.Categories() {
					out[category] = listing.Entries(category)
				}
				encoded, err := json.MarshalIndent(out, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(encoded))
				return nil
			}

			categories := listing.Categories()
			sort.Strings(categories)
			for _, category := range categories {
				fmt.Printf("%s:\n", category)
				for _, name := range listing.Entries(category) {
					fmt.Printf("  %s\n", name)
				}
			}
			return nil
		},
	}

	return cmd
}
