package commands

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/dishwasher/pkg/stores"
	"github.com/openfroyo/dishwasher/pkg/washer"
)

func newHistoryCommand() *cobra.Command {
	var (
		status  string
		program string
		limit   int
		plain   bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded wash cycles",
		Example: `  # Last 20 cycles
  washer history

  # Failed pump cycles only
  washer history --status error_pump

  # Inspect one cycle
  washer history show 6f1c...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := stores.CycleFilter{Limit: limit}
			if status != "" {
				s := washer.Status(status)
				if err := s.Validate(); err != nil {
					return err
				}
				filter.Status = s
			}
			if program != "" {
				p, err := washer.ParseWashingProgram(program)
				if err != nil {
					return err
				}
				filter.Program = p
			}

			file, err := loadFile()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), historyPath(file))
			if err != nil {
				return fmt.Errorf("failed to open history: %w", err)
			}
			defer store.Close()

			records, err := store.ListCycles(cmd.Context(), filter)
			if err != nil {
				return err
			}
			counts, err := store.StatusCounts(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, struct {
					Cycles []*stores.CycleRecord  `json:"cycles"`
					Counts map[washer.Status]int `json:"counts"`
				}{records, counts})
			}

			cycles := &table{
				title:   "Cycles",
				headers: []string{"id", "started", "program", "fill", "tablets", "status", "minutes"},
			}
			for _, r := range records {
				cycles.add(
					r.ID,
					r.StartedAt.Local().Format(time.DateTime),
					string(r.Program),
					string(r.FillLevel),
					strconv.FormatBool(r.TabletsUsed),
					string(r.Status),
					strconv.Itoa(r.RunMinutes),
				)
			}
			if err := cycles.render(out, plain); err != nil {
				return err
			}

			totals := &table{title: "Totals", headers: []string{"status", "cycles"}}
			statuses := make([]string, 0, len(counts))
			for s := range counts {
				statuses = append(statuses, string(s))
			}
			sort.Strings(statuses)
			for _, s := range statuses {
				totals.add(s, strconv.Itoa(counts[washer.Status(s)]))
			}
			fmt.Fprintln(out)
			return totals.render(out, plain)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only cycles with this status")
	cmd.Flags().StringVar(&program, "program", "", "only cycles running this program")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum cycles to list (0 for all)")
	cmd.Flags().BoolVar(&plain, "plain", false, "never render markdown")

	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistoryPruneCommand())

	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <cycle-id>",
		Short: "Show one recorded cycle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := loadFile()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), historyPath(file))
			if err != nil {
				return fmt.Errorf("failed to open history: %w", err)
			}
			defer store.Close()

			record, err := store.GetCycle(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), record)
			}
			printCycle(cmd.OutOrStdout(), record.Cycle())
			return nil
		},
	}
}

func newHistoryPruneCommand() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete cycles older than a given age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}

			file, err := loadFile()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), historyPath(file))
			if err != nil {
				return fmt.Errorf("failed to open history: %w", err)
			}
			defer store.Close()

			deleted, err := store.DeleteCyclesBefore(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]int64{"deleted": deleted})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d cycle(s)\n", deleted)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age of the oldest cycle to keep")

	return cmd
}
