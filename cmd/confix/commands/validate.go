package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/confix/confix/pkg/config"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [manifest...]",
		Short: "Validate CUE manifest files",
		Long: `Validate CUE manifest files without resolving anything.

This command checks:
  - CUE syntax validity
  - Request shapes (kinds, components, check parameters)
  - Depends references against declaration order
  - Settings script syntax (by evaluating it)`,
		Example: `  # Validate a manifest
  confix validate build.cue

  # Validate a directory of manifest files
  confix validate ./manifests`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			parser := config.NewCUEParser()

			mc, err := parser.Parse(ctx, args)
			if err != nil {
				return err
			}

			// The settings script is part of the manifest contract; a
			// broken one should fail validation, not the first resolve.
			if len(mc.Errors) == 0 && mc.Settings.Script != "" {
				if _, err := parser.EvaluateSettings(ctx, mc); err != nil {
					mc.Errors = append(mc.Errors, config.ValidationError{
						Path:     "settings.script",
						Message:  err.Error(),
						Severity: "error",
					})
				}
			}

			if jsonOutput {
				out := struct {
					Valid    bool                     `json:"valid"`
					Requests int                      `json:"requests"`
					Errors   []config.ValidationError `json:"errors,omitempty"`
				}{
					Valid:    len(mc.Errors) == 0,
					Requests: len(mc.Requests),
					Errors:   mc.Errors,
				}
				encoded, err := json.MarshalIndent(out, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(encoded))
				if len(mc.Errors) > 0 {
					return fmt.Errorf("manifest has %d error(s)", len(mc.Errors))
				}
				return nil
			}

			if len(mc.Errors) > 0 {
				for _, e := range mc.Errors {
					fmt.Fprintln(os.Stderr, formatDiagnostic(e))
				}
				return fmt.Errorf("manifest has %d error(s)", len(mc.Errors))
			}

			counts := map[string]int{}
			for _, req := range mc.Requests {
				counts[req.Kind]++
			}
			fmt.Printf("✓ %s is valid: %d request(s)", mc.Manifest.Name, len(mc.Requests))
			for _, kind := range []string{config.KindComponent, config.KindLibrary, config.KindProgram, config.KindRequirement} {
				if counts[kind] > 0 {
					fmt.Printf(" %s=%d", kind, counts[kind])
				}
			}
			fmt.Println()
			return nil
		},
	}

	return cmd
}
