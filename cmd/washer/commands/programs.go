package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/openfroyo/dishwasher/pkg/washer"
)

type programInfo struct {
	Name    washer.WashingProgram `json:"name"`
	Minutes int                   `json:"minutes"`
}

func newProgramsCommand() *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "programs",
		Short: "List washing programs and their durations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			programs := washer.Programs()

			if jsonOutput {
				infos := make([]programInfo, 0, len(programs))
				for _, p := range programs {
					infos = append(infos, programInfo{Name: p, Minutes: p.Minutes()})
				}
				return writeJSON(cmd.OutOrStdout(), infos)
			}

			t := &table{headers: []string{"program", "minutes"}}
			for _, p := range programs {
				t.add(string(p), strconv.Itoa(p.Minutes()))
			}
			return t.render(cmd.OutOrStdout(), plain)
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "never render markdown")

	return cmd
}
