package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/dishwasher/pkg/config"
	"github.com/openfroyo/dishwasher/pkg/devices/simulator"
	"github.com/openfroyo/dishwasher/pkg/telemetry"
	"github.com/openfroyo/dishwasher/pkg/transports/redis"
	"github.com/openfroyo/dishwasher/pkg/washer"
)

type runOptions struct {
	program   string
	fillLevel string
	tablets   bool
	noHistory bool
	redisAddr string

	doorOpen       bool
	filterCapacity float64
	pumpFault      string
	engineFault    string
}

func newRunCommand() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one wash cycle",
		Long: `Run one wash cycle on the simulated appliance.

The request comes from the appliance file when it has one; flags override
individual fields. Device flags simulate an open door, a loaded filter or
a failing pump or engine. The command exits non-zero when the cycle does
not finish with status success.`,
		Example: `  # Eco program, half load, no tablet
  washer run

  # Intensive program with a tablet against a nearly full filter
  washer run --program intensive --fill full --tablets --filter-capacity 75

  # Broadcast events to Redis and print the cycle as JSON
  washer run --redis localhost:6379 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCycle(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.program, "program", "eco", "washing program (intensive, eco, rinse, night)")
	cmd.Flags().StringVar(&opts.fillLevel, "fill", "half", "fill level (half, full)")
	cmd.Flags().BoolVar(&opts.tablets, "tablets", false, "a detergent tablet is loaded")
	cmd.Flags().BoolVar(&opts.noHistory, "no-history", false, "do not record the cycle")
	cmd.Flags().StringVar(&opts.redisAddr, "redis", "", "broadcast events to this Redis address")
	cmd.Flags().BoolVar(&opts.doorOpen, "door-open", false, "simulate an open door")
	cmd.Flags().Float64Var(&opts.filterCapacity, "filter-capacity", 0, "simulated dirt filter fill percentage")
	cmd.Flags().StringVar(&opts.pumpFault, "pump-fault", "", "make the pump fail with this message")
	cmd.Flags().StringVar(&opts.engineFault, "engine-fault", "", "make the engine fail with this message")

	return cmd
}

func runCycle(cmd *cobra.Command, opts *runOptions) error {
	file, err := loadFile()
	if err != nil {
		return err
	}
	opts.apply(cmd, file)

	tcfg := file.TelemetryConfig()
	tcfg.ServiceVersion = buildVersion
	if verbose {
		tcfg.Logging.Level = "debug"
	}
	tel, err := telemetry.NewTelemetry(tcfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	if err := tel.StartMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	ctx := tel.WithContext(cmd.Context())

	broadcaster, err := openBroadcaster(ctx, file.Broadcast.Redis, tel)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			tel.Logger.WithError(err).Warn("Telemetry shutdown failed")
		}
		if broadcaster != nil {
			_ = broadcaster.Close()
		}
	}()

	var washerOpts []washer.Option
	washerOpts = append(washerOpts, washer.WithTelemetry(tel))
	if !opts.noHistory {
		store, err := openStore(ctx, historyPath(file))
		if err != nil {
			return fmt.Errorf("failed to open history: %w", err)
		}
		defer store.Close()
		washerOpts = append(washerOpts, washer.WithRecorder(store))
	}

	// Unknown names are passed through so the cycle reports error_program.
	cfg := washer.ProgramConfiguration{
		FillLevel:   washer.FillLevel(file.Request.FillLevel),
		Program:     washer.WashingProgram(file.Request.Program),
		TabletsUsed: file.Request.TabletsUsed,
	}

	cycle := simulator.FromSettings(file.Devices).DishWasher(washerOpts...).StartCycle(ctx, cfg)

	out := cmd.OutOrStdout()
	if jsonOutput {
		if err := writeJSON(out, cycle); err != nil {
			return err
		}
	} else {
		printCycle(out, cycle)
	}

	if !cycle.Result.Succeeded() {
		return &StatusError{Status: cycle.Result.Status}
	}
	return nil
}

// apply merges the flags the user set into the file.
func (o *runOptions) apply(cmd *cobra.Command, file *config.File) {
	flags := cmd.Flags()

	if file.Request == nil {
		file.Request = &config.WashRequest{
			FillLevel: o.fillLevel,
			Program:   o.program,
		}
	}
	if flags.Changed("program") {
		file.Request.Program = o.program
	}
	if flags.Changed("fill") {
		file.Request.FillLevel = o.fillLevel
	}
	if flags.Changed("tablets") {
		file.Request.TabletsUsed = o.tablets
	}
	file.Request.Program = strings.ToLower(strings.TrimSpace(file.Request.Program))
	file.Request.FillLevel = strings.ToLower(strings.TrimSpace(file.Request.FillLevel))

	if flags.Changed("door-open") {
		file.Devices.Door.Open = o.doorOpen
	}
	if flags.Changed("filter-capacity") {
		file.Devices.Filter.Capacity = o.filterCapacity
	}
	if flags.Changed("pump-fault") {
		file.Devices.Pump.Fault = o.pumpFault
	}
	if flags.Changed("engine-fault") {
		file.Devices.Engine.Fault = o.engineFault
	}
	if flags.Changed("redis") {
		file.Broadcast.Redis.Address = o.redisAddr
	}
}

// openBroadcaster subscribes a Redis broadcaster to the cycle events.
// It returns nil when no address is configured.
func openBroadcaster(ctx context.Context, s config.RedisSettings, tel *telemetry.Telemetry) (*redis.Broadcaster, error) {
	if s.Address == "" {
		return nil, nil
	}

	var opts []redis.Option
	if s.Channel != "" {
		opts = append(opts, redis.WithChannel(s.Channel))
	}
	b := redis.New(s.Address, s.Password, s.DB, opts...)
	if err := b.Ping(ctx); err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", s.Address, err)
	}

	tel.Events.Subscribe(b.Subscriber(tel.Logger.NewComponentLogger("broadcast")), nil)
	tel.Logger.WithField("address", s.Address).WithField("channel", b.Channel()).Debug("Broadcasting cycle events")
	return b, nil
}

func printCycle(w io.Writer, cycle washer.Cycle) {
	fmt.Fprintf(w, "cycle:       %s\n", cycle.ID)
	fmt.Fprintf(w, "program:     %s (%s, tablets: %t)\n", cycle.Config.Program, cycle.Config.FillLevel, cycle.Config.TabletsUsed)
	fmt.Fprintf(w, "status:      %s\n", cycle.Result.Status)
	fmt.Fprintf(w, "run minutes: %d\n", cycle.Result.RunMinutes)
	if cycle.FilterCapacity != nil {
		fmt.Fprintf(w, "filter:      %.1f%%\n", *cycle.FilterCapacity)
	}
	if cycle.Err != "" {
		fmt.Fprintf(w, "error:       %s\n", cycle.Err)
	}
	steps := make([]string, len(cycle.Steps))
	for i, s := range cycle.Steps {
		steps[i] = string(s)
	}
	fmt.Fprintf(w, "steps:       %s\n", strings.Join(steps, " -> "))
}
