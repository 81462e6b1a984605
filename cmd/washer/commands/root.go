package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/dishwasher/pkg/config"
	"github.com/openfroyo/dishwasher/pkg/stores"
	"github.com/openfroyo/dishwasher/pkg/washer"
)

const defaultDBPath = "dishwasher.db"

var (
	// Global flags
	configPath string
	dbPath     string
	verbose    bool
	jsonOutput bool

	buildVersion = "dev"
)

// StatusError reports a cycle that finished with a failure status.
type StatusError struct {
	Status washer.Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("cycle finished with status %s", e.Status)
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	buildVersion = version

	rootCmd := &cobra.Command{
		Use:   "washer",
		Short: "Dishwasher wash cycle controller",
		Long: `washer drives a dishwasher through one wash cycle at a time.

A cycle checks the door, reads the dirt filter when tablets are used,
locks the door, pours water, runs the selected program and drains.
Every cycle is recorded to a local SQLite history and can optionally be
broadcast over Redis.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "appliance file (yaml, json or cue)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "cycle history database (default \""+defaultDBPath+"\")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newProgramsCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newVersionCommand(version, commit, buildDate))

	return rootCmd
}

// loadFile reads the appliance file named by --config, or returns defaults.
func loadFile() (*config.File, error) {
	if configPath == "" {
		return config.DefaultFile(), nil
	}

	log.Debug().Str("path", configPath).Msg("Loading appliance file")
	file, err := config.NewLoader().LoadFile(configPath)
	if err != nil {
		return nil, err
	}
	return file, nil
}

// historyPath picks the database from --db, then the file, then the default.
func historyPath(file *config.File) string {
	if dbPath != "" {
		return dbPath
	}
	if file.Store.Path != "" {
		return file.Store.Path
	}
	return defaultDBPath
}

// openStore opens and migrates the cycle history at path.
func openStore(ctx context.Context, path string) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}
