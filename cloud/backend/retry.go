package backend

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/glemaitre/ramp-board-1/common/stats"
)

// RetryPolicy bounds how a retrying backend retries and throttles calls.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxElapsedTime  time.Duration
	// Calls per second allowed through to the provider, zero for no limit.
	RateLimit float64
	Burst     int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      5,
		InitialInterval: 500 * time.Millisecond,
		MaxElapsedTime:  2 * time.Minute,
		RateLimit:       5,
		Burst:           10,
	}
}

// retrying retries failed calls with exponential backoff and rate limits
// every call. LaunchNodes is never retried since it is not idempotent.
type retrying struct {
	Backend
	policy  RetryPolicy
	limiter *rate.Limiter
	stat    stats.StatsReceiver
}

func NewRetrying(b Backend, policy RetryPolicy, stat stats.StatsReceiver) Backend {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	limit := rate.Inf
	if policy.RateLimit > 0 {
		limit = rate.Limit(policy.RateLimit)
	}
	burst := policy.Burst
	if burst < 1 {
		burst = 1
	}
	return &retrying{
		Backend: b,
		policy:  policy,
		limiter: rate.NewLimiter(limit, burst),
		stat:    stat.Scope("backend"),
	}
}

func (r *retrying) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if r.policy.InitialInterval > 0 {
		b.InitialInterval = r.policy.InitialInterval
	}
	b.MaxElapsedTime = r.policy.MaxElapsedTime
	return backoff.WithContext(backoff.WithMaxRetries(b, r.policy.MaxRetries), ctx)
}

func (r *retrying) call(ctx context.Context, name string, op func() error) error {
	defer r.stat.Latency(stats.BackendRequestLatency_ms).Time().Stop()
	r.stat.Counter(stats.BackendRequestCounter).Inc(1)

	var err error
	try := 1
	backoff.Retry(func() error {
		if err = r.limiter.Wait(ctx); err != nil {
			return nil
		}
		if try > 1 {
			r.stat.Counter(stats.BackendRetryCounter).Inc(1)
		}
		err = op()
		if err != nil {
			log.WithFields(
				log.Fields{
					"call":  name,
					"try":   try,
					"error": err,
				}).Debug("Backend call failed")
		}
		try++
		if IsPermanent(err) {
			return nil
		}
		return err
	}, r.newBackOff(ctx))
	if err != nil {
		r.stat.Counter(stats.BackendErrCounter).Inc(1)
	}
	return err
}

func (r *retrying) LaunchNodes(ctx context.Context, n int, tags map[string]string) ([]Node, error) {
	defer r.stat.Latency(stats.BackendRequestLatency_ms).Time().Stop()
	r.stat.Counter(stats.BackendRequestCounter).Inc(1)
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	nodes, err := r.Backend.LaunchNodes(ctx, n, tags)
	if err != nil {
		r.stat.Counter(stats.BackendErrCounter).Inc(1)
		return nil, err
	}
	r.stat.Counter(stats.BackendLaunchedNodesCounter).Inc(int64(len(nodes)))
	return nodes, nil
}

func (r *retrying) TerminateNode(ctx context.Context, id NodeId) error {
	err := r.call(ctx, "TerminateNode", func() error {
		return r.Backend.TerminateNode(ctx, id)
	})
	if err == nil {
		r.stat.Counter(stats.BackendTerminatedNodesCounter).Inc(1)
	}
	return err
}

func (r *retrying) ListNodeIDs(ctx context.Context) (ids []NodeId, err error) {
	err = r.call(ctx, "ListNodeIDs", func() (err error) {
		ids, err = r.Backend.ListNodeIDs(ctx)
		return err
	})
	return ids, err
}

func (r *retrying) NodeStatus(ctx context.Context, id NodeId) (st *NodeStatus, err error) {
	err = r.call(ctx, "NodeStatus", func() (err error) {
		st, err = r.Backend.NodeStatus(ctx, id)
		return err
	})
	return st, err
}

func (r *retrying) Upload(ctx context.Context, id NodeId, localPath, remotePath string) error {
	return r.call(ctx, "Upload", func() error {
		return r.Backend.Upload(ctx, id, localPath, remotePath)
	})
}

func (r *retrying) Download(ctx context.Context, id NodeId, remotePath, localPath string) error {
	return r.call(ctx, "Download", func() error {
		return r.Backend.Download(ctx, id, remotePath, localPath)
	})
}

func (r *retrying) RunCommand(ctx context.Context, id NodeId, cmd string) (out string, err error) {
	err = r.call(ctx, "RunCommand", func() (err error) {
		out, err = r.Backend.RunCommand(ctx, id, cmd)
		return err
	})
	return out, err
}

func (r *retrying) RunCommandStatus(ctx context.Context, id NodeId, cmd string) (code int, err error) {
	err = r.call(ctx, "RunCommandStatus", func() (err error) {
		code, err = r.Backend.RunCommandStatus(ctx, id, cmd)
		return err
	})
	return code, err
}

func (r *retrying) TagNode(ctx context.Context, id NodeId, key, value string) error {
	return r.call(ctx, "TagNode", func() error {
		return r.Backend.TagNode(ctx, id, key, value)
	})
}

func (r *retrying) ListTags(ctx context.Context, id NodeId) (tags map[string]string, err error) {
	err = r.call(ctx, "ListTags", func() (err error) {
		tags, err = r.Backend.ListTags(ctx, id)
		return err
	})
	return tags, err
}

func (r *retrying) DeleteTag(ctx context.Context, id NodeId, key string) error {
	return r.call(ctx, "DeleteTag", func() error {
		return r.Backend.DeleteTag(ctx, id, key)
	})
}

func (r *retrying) FindNodesByTag(ctx context.Context, key, value string) (ids []NodeId, err error) {
	err = r.call(ctx, "FindNodesByTag", func() (err error) {
		ids, err = r.Backend.FindNodesByTag(ctx, key, value)
		return err
	})
	return ids, err
}
