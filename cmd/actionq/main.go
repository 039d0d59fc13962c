package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	actionqueue "github.com/goliatone/go-actionqueue"
	"github.com/goliatone/go-actionqueue/config"
	"github.com/goliatone/go-actionqueue/manager"
	"github.com/goliatone/go-actionqueue/metrics"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

type Globals struct {
	Config  string `help:"Path to a YAML configuration file." type:"path" env:"ACTIONQ_CONFIG"`
	EnvFile string `name:"env-file" help:"Dotenv file loaded before configuration." default:".env"`
}

type CLI struct {
	Globals

	Simulate SimulateCmd `cmd:"" help:"Run keyed sessions against a queue manager and print a summary."`
	Flags    FlagsCmd    `cmd:"" help:"Print the action kinds and the flags they carry."`
}

type SimulateCmd struct {
	Keys          int           `help:"Number of independent keys." default:"4"`
	Actions       int           `help:"Actions submitted per key between open and close." default:"20"`
	SnapshotEvery int           `name:"snapshot-every" help:"Submit a blocking snapshot every N actions, 0 disables." default:"5"`
	Work          time.Duration `help:"Simulated duration of each action." default:"5ms"`
	Retries       int           `help:"Resubmissions of a rejected action." default:"10"`
	RetryDelay    time.Duration `name:"retry-delay" help:"Base backoff between resubmissions." default:"2ms"`
	Ping          string        `help:"Cron expression submitting unqueued pings during the run, e.g. '@every 1s'."`
	MetricsAddr   string        `name:"metrics-addr" help:"Serve Prometheus metrics on this address while running."`
	Linger        time.Duration `help:"Keep the metrics endpoint up for this long after the run." default:"0s"`
}

type FlagsCmd struct{}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("actionq"),
		kong.Description("Keyed action queueing playground."),
		kong.UsageOnError(),
		kong.BindTo(ctx, (*context.Context)(nil)),
		kong.BindTo(os.Stdout, (*io.Writer)(nil)),
	)

	err := kctx.Run(&cli.Globals)
	kctx.FatalIfErrorf(err)
}

func (g *Globals) load() (config.Config, error) {
	if g.EnvFile != "" {
		if err := godotenv.Load(g.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return config.Config{}, err
		}
	}
	return config.Load(g.Config)
}

func (c *SimulateCmd) Run(ctx context.Context, g *Globals, out io.Writer) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	if c.MetricsAddr != "" {
		cfg.Metrics.Addr = c.MetricsAddr
	}

	logger := cfg.Logging.NewLogger(os.Stderr)
	table, err := flagTable(cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	recorder := metrics.New(reg)

	opts := config.ManagerOptions[int](cfg, logger)
	opts = append(opts,
		manager.WithRecorder[int](recorder),
		manager.WithHooks[int](stateLogger(logger)),
	)

	var srv *http.Server
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, recorder.Handler())
		srv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server: %v", err)
			}
		}()
		logger.Info("serving metrics on %s%s", cfg.Metrics.Addr, cfg.Metrics.Path)
	}

	summary, err := runSimulation(ctx, Scenario{
		Keys:          c.Keys,
		ActionsPerKey: c.Actions,
		SnapshotEvery: c.SnapshotEvery,
		WorkDelay:     c.Work,
		Retries:       c.Retries,
		RetryDelay:    c.RetryDelay,
		Ping:          c.Ping,
	}, table, opts, logger)
	fmt.Fprintln(out, summary.String())

	if srv != nil {
		if c.Linger > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(c.Linger):
			}
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	return err
}

func (c *FlagsCmd) Run(g *Globals, out io.Writer) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	table, err := flagTable(cfg)
	if err != nil {
		return err
	}
	return printFlags(out, table)
}

func printFlags(out io.Writer, table *actionqueue.FlagTable) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tFLAGS")
	for _, kind := range table.Kinds() {
		fmt.Fprintf(w, "%s\t%s\n", kind, table.Flags(kind))
	}
	return w.Flush()
}
