package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/glemaitre/ramp-board-1/common/endpoints"
	"github.com/glemaitre/ramp-board-1/common/stats"
	"github.com/glemaitre/ramp-board-1/config"
	"github.com/glemaitre/ramp-board-1/dispatcher"
	"github.com/glemaitre/ramp-board-1/domain"
)

const defaultHTTPAddr = "localhost:9091"

type dispatcherCmd struct {
	nWorker      int
	hungerPolicy string
	httpAddr     string
}

func (d *dispatcherCmd) registerFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "dispatcher",
		Short: "Launch the dispatcher, which trains new submissions and records their results",
	}
	r.Flags().IntVar(&d.nWorker, "n-worker", -1, "number of submissions trained in parallel, negative leaves that many CPUs free")
	r.Flags().StringVar(&d.hungerPolicy, "hunger-policy", string(domain.HungerExit), "what to do when nothing is left to train: sleep, exit or empty to keep polling")
	r.Flags().StringVar(&d.httpAddr, "http-addr", defaultHTTPAddr, "address to serve health, metrics and logs on, empty to disable")
	return r
}

func (d *dispatcherCmd) run(c *CLI, cmd *cobra.Command, args []string) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	dc, err := d.dispatcherConfig(c, cmd, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stat := stats.DefaultStatsReceiver().Precision(time.Millisecond)
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	factory, err := c.newFactory(ctx, cfg, stat)
	if err != nil {
		return err
	}

	if d.httpAddr != "" {
		srv := endpoints.NewAdminServer(d.httpAddr, stat, dc.Paths.Logs)
		go func() {
			if err := srv.Serve(ctx); err != nil {
				log.WithFields(
					log.Fields{
						"addr": d.httpAddr,
						"err":  err,
					}).Error("Admin server stopped")
			}
		}()
	}

	disp := dispatcher.New(dc, st, factory, stat)
	log.Infof("Starting dispatcher with %s workers: %s", factory.Kind(), dc)
	return disp.Run(ctx)
}

// dispatcherConfig applies the flags given on the command line over the
// config file.
func (d *dispatcherCmd) dispatcherConfig(c *CLI, cmd *cobra.Command, cfg *config.Config) (dispatcher.Config, error) {
	dc := cfg.DispatcherConfig()

	n := d.nWorker
	if !cmd.Flags().Changed("n-worker") && cfg.Dispatcher.NWorker != 0 {
		n = cfg.Dispatcher.NWorker
	}
	dc.NWorker = resolveNWorker(n, c.cpus())

	policy := d.hungerPolicy
	if !cmd.Flags().Changed("hunger-policy") && cfg.Dispatcher.HungerPolicy != "" {
		policy = cfg.Dispatcher.HungerPolicy
	}
	hp, err := domain.ParseHungerPolicy(policy)
	if err != nil {
		return dispatcher.Config{}, err
	}
	dc.HungerPolicy = hp
	return dc, nil
}
