package commands

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/confix/confix/pkg/cache"
	"github.com/confix/confix/pkg/config"
	"github.com/confix/confix/pkg/environ"
)

type providerComponent struct {
	Name    string `json:"name"`
	Overlap bool   `json:"overlap,omitempty"`
}

type providerInfo struct {
	Name       string              `json:"name"`
	Members    []string            `json:"members,omitempty"`
	Components []providerComponent `json:"components,omitempty"`
}

func newProvidersCommand() *cobra.Command {
	var (
		paths  []string
		files  []string
		detect bool
	)

	cmd := &cobra.Command{
		Use:   "providers [manifest...]",
		Short: "List the providers a manifest can draw from",
		Long: `List the providers in the catalog a manifest names, or in explicitly
given search paths.

Toolchain bundles are shown with their members; applying a bundle applies
every member. With --detect, each provider is trial-applied to a scratch
environment to discover the components it supplies; components a second
application touches again are marked as overlapping.`,
		Example: `  # List providers from a manifest's search paths
  confix providers build.cue

  # List providers from an explicit directory
  confix providers --path ./providers

  # Discover the components each provider supplies
  confix providers --path ./providers --detect`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var catalog *environ.Catalog
			if len(args) > 0 {
				parser := config.NewCUEParser()
				mc, err := loadManifest(ctx, parser, args)
				if err != nil {
					return err
				}
				mc.Providers.Paths = append(mc.Providers.Paths, paths...)
				mc.Providers.Files = append(mc.Providers.Files, files...)
				catalog, err = buildCatalog(mc)
				if err != nil {
					return err
				}
			} else {
				if len(paths) == 0 && len(files) == 0 {
					return fmt.Errorf("give a manifest or at least one --path/--file")
				}
				catalog = environ.NewCatalog()
				for _, dir := range paths {
					if err := catalog.LoadDir(dir); err != nil {
						return fmt.Errorf("failed to load providers from %s: %w", dir, err)
					}
				}
				for _, file := range files {
					if err := catalog.LoadFile(file); err != nil {
						return fmt.Errorf("failed to load provider %s: %w", file, err)
					}
				}
			}

			var pc *cache.Cache
			if detect {
				pc = cache.For(baseEnvironment(), catalog, log.Logger)
			}

			infos := make([]providerInfo, 0, len(catalog.Names()))
			for _, name := range catalog.Names() {
				p, err := catalog.Lookup(name)
				if err != nil {
					continue
				}
				info := providerInfo{Name: p.Name(), Members: p.Members()}
				if pc != nil {
					if err := pc.Add(name); err != nil {
						return fmt.Errorf("failed to detect provider %s: %w", name, err)
					}
					info.Components = detectedComponents(pc, name)
				}
				infos = append(infos, info)
			}

			if jsonOutput {
				encoded, err := json.MarshalIndent(infos, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(encoded))
				return nil
			}

			if len(infos) == 0 {
				fmt.Println("No providers found")
				return nil
			}
			for _, info := range infos {
				if len(info.Members) > 0 {
					fmt.Printf("%s (bundle: %s)\n", info.Name, strings.Join(info.Members, ", "))
				} else {
					fmt.Println(info.Name)
				}
				if info.Components != nil {
					parts := make([]string, 0, len(info.Components))
					for _, comp := range info.Components {
						if comp.Overlap {
							parts = append(parts, comp.Name+"*")
						} else {
							parts = append(parts, comp.Name)
						}
					}
					if len(parts) == 0 {
						fmt.Println("  components: (none)")
					} else {
						fmt.Printf("  components: %s\n", strings.Join(parts, ", "))
					}
				}
			}
			if detect {
				fmt.Println("\n* component may be supplied alongside another provider")
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&paths, "path", nil, "provider manifest directory (repeatable)")
	cmd.Flags().StringSliceVar(&files, "file", nil, "provider manifest file (repeatable)")
	cmd.Flags().BoolVar(&detect, "detect", false, "trial-apply each provider and list its components")

	return cmd
}

func detectedComponents(pc *cache.Cache, provider string) []providerComponent {
	comps := pc.Components(provider)
	out := make([]providerComponent, 0, len(comps))
	for name, comp := range comps {
		out = append(out, providerComponent{Name: name, Overlap: comp.Overlap})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
