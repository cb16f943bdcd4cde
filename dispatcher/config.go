package dispatcher

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/glemaitre/ramp-board-1/domain"
	"github.com/glemaitre/ramp-board-1/worker"
)

const (
	DefaultHungerSleep     = 5 * time.Second
	DefaultRecoverTimeout  = time.Minute
	DefaultShutdownTimeout = 5 * time.Minute
)

// Paths are the local folders shared by every submission of the event.
type Paths struct {
	// Kits and Data hold one folder per problem.
	Kits string
	Data string
	// Submissions defaults to the kit's submissions folder.
	Submissions string
	Predictions string
	Logs        string
}

type Config struct {
	EventName string
	// Maximum number of submissions processing at once, at least 1.
	NWorker      int
	HungerPolicy domain.HungerPolicy
	HungerSleep  time.Duration
	// Pause between two cycles of the loop, zero for none.
	Interval time.Duration
	Paths    Paths

	// Bounds how long listing submissions to reset is retried.
	RecoverTimeout time.Duration
	// Bounds teardown and the final reset once Run is stopping.
	ShutdownTimeout time.Duration
}

func (c Config) String() string {
	return fmt.Sprintf("event: %s, n_worker: %d, hunger_policy: %q, hunger_sleep: %s, interval: %s",
		c.EventName, c.NWorker, c.HungerPolicy, c.HungerSleep, c.Interval)
}

func (c Config) withDefaults() Config {
	if c.NWorker < 1 {
		c.NWorker = 1
	}
	if c.HungerSleep <= 0 {
		c.HungerSleep = DefaultHungerSleep
	}
	if c.RecoverTimeout <= 0 {
		c.RecoverTimeout = DefaultRecoverTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	return c
}

// workerConfig resolves the folders of sub from its problem.
func (c Config) workerConfig(sub *domain.Submission) worker.Config {
	kit := filepath.Join(c.Paths.Kits, sub.ProblemName)
	subs := c.Paths.Submissions
	if subs == "" {
		subs = filepath.Join(kit, "submissions")
	}
	return worker.Config{
		Submission:     sub.Basename,
		SubmissionID:   sub.ID,
		EventName:      sub.EventName,
		KitDir:         kit,
		DataDir:        filepath.Join(c.Paths.Data, sub.ProblemName),
		SubmissionsDir: subs,
		PredictionsDir: c.Paths.Predictions,
		LogsDir:        c.Paths.Logs,
	}
}

// FoldPath is where the predictions of one fold of a submission end up.
func (c Config) FoldPath(basename string, fold domain.CVFold) string {
	return filepath.Join(c.Paths.Predictions, basename, fold.Dir())
}
