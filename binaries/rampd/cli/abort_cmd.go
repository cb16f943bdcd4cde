package cli

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/glemaitre/ramp-board-1/cloud/backend"
	"github.com/glemaitre/ramp-board-1/common/stats"
)

// nodeAborter is implemented by factories whose trainings run on nodes.
type nodeAborter interface {
	Abort(ctx context.Context, id backend.NodeId, submission string) error
}

type abortCmd struct {
	submission string
	node       string
}

func (a *abortCmd) registerFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "abort",
		Short: "Stop the training of a submission on a remote node",
	}
	r.Flags().StringVar(&a.submission, "submission", "", "name of the submission to abort")
	r.Flags().StringVar(&a.node, "node", "", "id of the node the submission trains on")
	return r
}

func (a *abortCmd) run(c *CLI, cmd *cobra.Command, args []string) error {
	if a.submission == "" || a.node == "" {
		return errors.New("abort needs both --submission and --node")
	}
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	factory, err := c.newFactory(ctx, cfg, stats.NilStatsReceiver())
	if err != nil {
		return err
	}
	ab, ok := factory.(nodeAborter)
	if !ok {
		return errors.Errorf("%s workers don't run on nodes, nothing to abort", factory.Kind())
	}
	if err := ab.Abort(ctx, backend.NodeId(a.node), a.submission); err != nil {
		return err
	}
	log.WithFields(
		log.Fields{
			"submission": a.submission,
			"node":       a.node,
		}).Info("Aborted training")
	return nil
}
