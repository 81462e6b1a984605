package commands

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/dishwasher/pkg/config"
)

type validateResult struct {
	Path   string                   `json:"path"`
	Valid  bool                     `json:"valid"`
	Errors []config.ValidationError `json:"errors,omitempty"`
}

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate an appliance file",
		Long: `Validate an appliance file without running anything.

The file is decoded by extension (.yaml, .yml, .json or .cue), checked
against the built-in CUE schema, then against field constraints.`,
		Example: `  washer validate appliance.yaml
  washer validate --json appliance.cue`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			log.Debug().Str("path", path).Msg("Validating appliance file")

			file, err := config.NewLoader().LoadFile(path)

			var verrs config.ValidationErrors
			if err != nil && !errors.As(err, &verrs) {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				if err := writeJSON(out, validateResult{Path: path, Valid: err == nil, Errors: verrs}); err != nil {
					return err
				}
			} else if err != nil {
				for _, e := range verrs {
					fmt.Fprintln(out, e.String())
				}
			} else {
				fmt.Fprintf(out, "%s: ok\n", path)
				if file.Request != nil {
					fmt.Fprintf(out, "request: %s, %s, tablets: %t\n",
						file.Request.Program, file.Request.FillLevel, file.Request.TabletsUsed)
				}
			}

			if err != nil {
				return fmt.Errorf("%s: %d validation error(s)", path, len(verrs))
			}
			return nil
		},
	}

	return cmd
}
