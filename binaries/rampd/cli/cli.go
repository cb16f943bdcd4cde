// Package cli implements the rampd command line: running the dispatcher,
// resetting interrupted submissions and aborting a remote training.
package cli

import (
	"context"
	"runtime"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/glemaitre/ramp-board-1/cloud/backend"
	awsbackend "github.com/glemaitre/ramp-board-1/cloud/backend/aws"
	"github.com/glemaitre/ramp-board-1/common/log/hooks"
	"github.com/glemaitre/ramp-board-1/common/stats"
	"github.com/glemaitre/ramp-board-1/config"
	osexecer "github.com/glemaitre/ramp-board-1/runner/execer/os"
	"github.com/glemaitre/ramp-board-1/store/sqlite"
	"github.com/glemaitre/ramp-board-1/worker"
	"github.com/glemaitre/ramp-board-1/worker/local"
	"github.com/glemaitre/ramp-board-1/worker/remote"
)

const defaultConfigPath = "config.yml"

type CLI struct {
	rootCmd *cobra.Command

	configPath string
	workerType string
	logLevel   string
	verbose    bool

	// Number of CPUs negative worker counts are taken from.
	cpus       func() int
	newFactory func(ctx context.Context, cfg *config.Config, stat stats.StatsReceiver) (worker.Factory, error)
}

func (c *CLI) Exec() error {
	return c.rootCmd.Execute()
}

func NewRampCLI() *CLI {
	c := &CLI{cpus: runtime.NumCPU, newFactory: newFactory}

	c.rootCmd = &cobra.Command{
		Use:               "rampd",
		Short:             "rampd trains RAMP submissions and records their results",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setupLogging,
	}
	pf := c.rootCmd.PersistentFlags()
	pf.StringVar(&c.configPath, "config", defaultConfigPath, "configuration file in YAML format")
	pf.StringVar(&c.workerType, "worker", "", "type of worker to use, local or aws; overrides the config")
	pf.StringVar(&c.logLevel, "log-level", "info", "<error|info|debug> level and above should be logged")
	pf.BoolVarP(&c.verbose, "verbose", "v", false, "log at debug level")

	c.addCmd(&dispatcherCmd{})
	c.addCmd(&recoverCmd{})
	c.addCmd(&abortCmd{})

	return c
}

func (c *CLI) addCmd(cmd command) {
	cobraCmd := cmd.registerFlags()
	cobraCmd.RunE = func(innerCmd *cobra.Command, args []string) error {
		return cmd.run(c, innerCmd, args)
	}
	c.rootCmd.AddCommand(cobraCmd)
}

type command interface {
	registerFlags() *cobra.Command
	run(c *CLI, cmd *cobra.Command, args []string) error
}

func (c *CLI) setupLogging(cmd *cobra.Command, args []string) error {
	level, err := log.ParseLevel(c.logLevel)
	if err != nil {
		return err
	}
	if c.verbose {
		level = log.DebugLevel
	}
	log.SetLevel(level)
	if level >= log.DebugLevel {
		log.AddHook(hooks.NewContextHook())
	}
	return nil
}

// loadConfig reads the config file and applies the --worker override.
func (c *CLI) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	if c.workerType != "" {
		cfg.Worker.Type = c.workerType
		if err := cfg.Validate(); err != nil {
			return nil, errors.Wrapf(err, "config %s with --worker %s", c.configPath, c.workerType)
		}
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config) (*sqlite.Store, error) {
	if cfg.Store.SQLitePath == "" {
		return nil, errors.New(`required field "store.sqlite_path" missing from config`)
	}
	return sqlite.Open(ctx, cfg.Store.SQLitePath)
}

// newFactory builds the workers selected by the config. Remote calls go
// through a rate limited retrying backend.
func newFactory(ctx context.Context, cfg *config.Config, stat stats.StatsReceiver) (worker.Factory, error) {
	kind, err := cfg.Kind()
	if err != nil {
		return nil, err
	}
	switch kind {
	case worker.KindAWS:
		b, err := awsbackend.New(ctx, cfg.AWS.BackendConfig(), osexecer.NewExecer())
		if err != nil {
			return nil, err
		}
		rb := backend.NewRetrying(b, backend.DefaultRetryPolicy(), stat.Scope("backend"))
		return remote.NewFactory(cfg.AWS.RemoteConfig(), rb, osexecer.NewExecer())
	default:
		ex := osexecer.NewMonitoredExecer(cfg.Local.MemoryInterval(), stat.Scope("execer"),
			osexecer.WithAbortTimeout(cfg.Local.AbortGraceSecs))
		return local.NewFactory(cfg.Local.Env(), cfg.Local.Timeout(), ex), nil
	}
}

// resolveNWorker turns a worker count into the size of the processing set.
// Negative counts leave |n| CPUs free.
func resolveNWorker(n, cpus int) int {
	if n < 0 {
		n = cpus + n
	}
	if n < 1 {
		n = 1
	}
	return n
}
