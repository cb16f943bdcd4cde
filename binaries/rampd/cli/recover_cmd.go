package cli

import (
	"github.com/spf13/cobra"

	"github.com/glemaitre/ramp-board-1/common/stats"
	"github.com/glemaitre/ramp-board-1/dispatcher"
)

type recoverCmd struct{}

func (r *recoverCmd) registerFlags() *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Reset the submissions of the event left in training by a stopped dispatcher",
	}
}

func (r *recoverCmd) run(c *CLI, cmd *cobra.Command, args []string) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	stat := stats.NilStatsReceiver()
	factory, err := c.newFactory(ctx, cfg, stat)
	if err != nil {
		return err
	}
	return dispatcher.New(cfg.DispatcherConfig(), st, factory, stat).Recover(ctx)
}
