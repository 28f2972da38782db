// Command nengodworker is the worker process one rank of a distributed
// simulator run attaches to (spec.md §4.6 "spawn or attach worker
// processes"). It reads a stream of build records from stdin, applies them
// to a single chunk.Chunk, finalizes the build, then serves steady-state
// run_n_steps/probe_data/reset/close requests over the same stdin/stdout
// pair until told to close.
//
// Grounded on the teacher's bare cmd/main.go (a single hardcoded circuit
// driven from main) for the overall "build then step" shape, and on
// roach88-nysm's internal/cli cobra root command for flag/config wiring.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nengodist/nengodist/chunk"
	"github.com/nengodist/nengodist/comm"
	"github.com/nengodist/nengodist/comm/netconn"
	"github.com/nengodist/nengodist/internal/obslog"
	"github.com/nengodist/nengodist/internal/runid"
	"github.com/nengodist/nengodist/probe"
	"github.com/nengodist/nengodist/probe/sqlitesink"
	"github.com/nengodist/nengodist/simrun"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var cfgPath string
	cfg := Config{Dt: 0.001, LogLevel: "info"}

	cmd := &cobra.Command{
		Use:   "nengodworker",
		Short: "worker process for one rank of a nengodist simulation run",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgPath == "" {
				return nil
			}
			fileCfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			mergeConfig(&cfg, fileCfg, cmd)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfgPath, "config", "", "path to a YAML run config (flags below override it)")
	flags.IntVar(&cfg.Rank, "rank", 0, "this worker's rank")
	flags.IntVar(&cfg.NProcs, "nprocs", 1, "total number of ranks in the run")
	flags.StringSliceVar(&cfg.Peers, "peers", nil, "host:port for every rank's listen address, index == rank")
	flags.Float64Var(&cfg.Dt, "dt", cfg.Dt, "simulation step size")
	flags.Int64Var(&cfg.Seed, "seed", 0, "seed passed to the chunk's initial reset (spec.md §6 reset(seed))")
	flags.BoolVar(&cfg.Merged, "merged", false, "install merged communication plans at finalize_build")
	flags.IntVar(&cfg.BarrierPeriod, "barrier-period", 0, "steps between synchronization barriers (0 disables)")
	flags.IntVar(&cfg.FlushEvery, "flush-every", 0, "steps between probe flushes (0 flushes only at close)")
	flags.StringVar(&cfg.SinkPath, "sink", "", "sqlite path for probe output (empty keeps an in-memory sink)")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug|info|warn|error")

	return cmd
}

// mergeConfig fills any field the command line left at its flag default from
// fileCfg; an explicitly-set flag always wins.
func mergeConfig(cfg *Config, fileCfg Config, cmd *cobra.Command) {
	set := func(name string) bool { return cmd.Flags().Changed(name) }
	if !set("rank") {
		cfg.Rank = fileCfg.Rank
	}
	if !set("nprocs") {
		cfg.NProcs = fileCfg.NProcs
	}
	if !set("peers") && len(fileCfg.Peers) > 0 {
		cfg.Peers = fileCfg.Peers
	}
	if !set("dt") && fileCfg.Dt != 0 {
		cfg.Dt = fileCfg.Dt
	}
	if !set("merged") {
		cfg.Merged = fileCfg.Merged
	}
	if !set("barrier-period") {
		cfg.BarrierPeriod = fileCfg.BarrierPeriod
	}
	if !set("flush-every") {
		cfg.FlushEvery = fileCfg.FlushEvery
	}
	if !set("sink") && fileCfg.SinkPath != "" {
		cfg.SinkPath = fileCfg.SinkPath
	}
	if !set("log-level") && fileCfg.LogLevel != "" {
		cfg.LogLevel = fileCfg.LogLevel
	}
	if !set("seed") {
		cfg.Seed = fileCfg.Seed
	}
}

func run(cfg Config) error {
	logger := obslog.New(os.Stderr, parseLevel(cfg.LogLevel))

	var transport comm.Transport
	if len(cfg.Peers) > 0 {
		t, err := netconn.Dial(cfg.Rank, cfg.Peers)
		if err != nil {
			return err
		}
		defer t.Close()
		transport = t
	}

	c := chunk.New(cfg.Rank, cfg.NProcs, cfg.Dt)

	dec := simrun.NewDecoder(os.Stdin)
	for {
		rec, err := dec.Recv()
		if err != nil {
			return err
		}
		stop, err := simrun.ApplyRecord(c, transport, rec)
		if err != nil {
			return err
		}
		if stop {
			break
		}
	}

	var sink probe.LogSink
	if cfg.SinkPath != "" {
		s, err := sqlitesink.Open(cfg.SinkPath, runid.New(), logger)
		if err != nil {
			return err
		}
		sink = s
	}

	if err := c.FinalizeBuild(chunk.Options{
		Merged:        cfg.Merged,
		BarrierPeriod: cfg.BarrierPeriod,
		Transport:     transport,
		Sink:          sink,
		FlushEvery:    cfg.FlushEvery,
		Logger:        logger,
	}); err != nil {
		return err
	}

	// Apply the configured seed once up front via the same reset(seed) path
	// a later control-stream "reset" message uses (cmd/nengodworker/control.go),
	// so a worker started with --seed/config seed behaves identically to one
	// reset to that seed immediately after finalize_build.
	if err := c.Reset(cfg.Seed); err != nil {
		return err
	}

	logger.Infof("nengodworker: rank %d/%d finalized (seed=%d), entering control loop", cfg.Rank, cfg.NProcs, cfg.Seed)
	return runControlLoop(c, os.Stdin, os.Stdout)
}

func parseLevel(s string) obslog.Level {
	switch s {
	case "debug":
		return obslog.LevelDebug
	case "warn":
		return obslog.LevelWarn
	case "error":
		return obslog.LevelError
	default:
		return obslog.LevelInfo
	}
}
