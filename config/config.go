// Package config loads the dispatcher's YAML configuration file.
//
// Example:
//
//	ramp:
//	  event_name: iris_test
//	  kits_dir: /ramp/kits
//	  data_dir: /ramp/data
//	  predictions_dir: /ramp/predictions
//	  logs_dir: /ramp/logs
//	store:
//	  sqlite_path: /ramp/ramp.db
//	worker:
//	  type: aws
//	aws:
//	  profile_name: ramp
//	  region_name: us-west-2
//	  ...
//
// The worker type picks which of the local or aws sections is used.
package config

import (
	"bytes"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/glemaitre/ramp-board-1/dispatcher"
	"github.com/glemaitre/ramp-board-1/domain"
	"github.com/glemaitre/ramp-board-1/worker"
	"github.com/glemaitre/ramp-board-1/worker/local"
)

type Config struct {
	Ramp       Ramp       `yaml:"ramp"`
	Store      Store      `yaml:"store"`
	Dispatcher Dispatcher `yaml:"dispatcher"`
	Worker     Worker     `yaml:"worker"`
	Local      Local      `yaml:"local"`
	AWS        *AWS       `yaml:"aws"`
}

type Ramp struct {
	EventName      string `yaml:"event_name"`
	KitsDir        string `yaml:"kits_dir"`
	DataDir        string `yaml:"data_dir"`
	SubmissionsDir string `yaml:"submissions_dir"`
	PredictionsDir string `yaml:"predictions_dir"`
	LogsDir        string `yaml:"logs_dir"`
}

type Store struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type Dispatcher struct {
	NWorker            int    `yaml:"n_worker"`
	HungerPolicy       string `yaml:"hunger_policy"`
	HungerSleepSecs    int    `yaml:"hunger_sleep_secs"`
	RecoverTimeoutSecs int    `yaml:"recover_timeout_secs"`
}

type Worker struct {
	Type string `yaml:"type"`
}

type Local struct {
	CondaEnv    string `yaml:"conda_env"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	// Sampling period of the memory of training processes, zero to disable.
	MemoryIntervalSecs int `yaml:"memory_interval_secs"`
	// Seconds an aborted submission gets between SIGTERM and SIGKILL.
	AbortGraceSecs int `yaml:"abort_grace_secs"`
}

// Load reads and validates the file at path. Unknown fields are errors.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't read config %s", path)
	}
	c, err := Parse(b)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return c, nil
}

func Parse(b []byte) (*Config, error) {
	c := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return nil, errors.Wrap(err, "couldn't parse config")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Kind is the worker type, local unless set.
func (c *Config) Kind() (worker.Kind, error) {
	if c.Worker.Type == "" {
		return worker.KindLocal, nil
	}
	return worker.ParseKind(c.Worker.Type)
}

func (c *Config) Validate() error {
	if c.Ramp.EventName == "" {
		return errors.New(`required field "ramp.event_name" missing from config`)
	}
	if c.Ramp.KitsDir == "" {
		return errors.New(`required field "ramp.kits_dir" missing from config`)
	}
	if _, err := domain.ParseHungerPolicy(c.Dispatcher.HungerPolicy); err != nil {
		return err
	}
	kind, err := c.Kind()
	if err != nil {
		return err
	}
	if kind == worker.KindAWS {
		if c.AWS == nil {
			return errors.Errorf(`expects "%s" section in config`, "aws")
		}
		return c.AWS.Validate()
	}
	if c.Ramp.PredictionsDir == "" || c.Ramp.LogsDir == "" {
		return errors.New(`local workers need "ramp.predictions_dir" and "ramp.logs_dir"`)
	}
	return nil
}

// DispatcherConfig builds the dispatcher configuration. Flags given on the
// command line are applied by the caller on top of it.
func (c *Config) DispatcherConfig() dispatcher.Config {
	dc := dispatcher.Config{
		EventName:      c.Ramp.EventName,
		NWorker:        c.Dispatcher.NWorker,
		HungerPolicy:   domain.HungerPolicy(c.Dispatcher.HungerPolicy),
		HungerSleep:    secs(c.Dispatcher.HungerSleepSecs),
		RecoverTimeout: secs(c.Dispatcher.RecoverTimeoutSecs),
		Paths: dispatcher.Paths{
			Kits:        c.Ramp.KitsDir,
			Data:        c.Ramp.DataDir,
			Submissions: c.Ramp.SubmissionsDir,
			Predictions: c.Ramp.PredictionsDir,
			Logs:        c.Ramp.LogsDir,
		},
	}
	if kind, _ := c.Kind(); kind == worker.KindAWS && c.AWS != nil {
		dc.Paths.Predictions = c.AWS.LocalPredictionsFolder
		dc.Paths.Logs = c.AWS.LocalLogFolder
		dc.Interval = secs(c.AWS.TrainLoopIntervalSecs)
	}
	return dc
}

func (l Local) Timeout() time.Duration        { return secs(l.TimeoutSecs) }
func (l Local) MemoryInterval() time.Duration { return secs(l.MemoryIntervalSecs) }

func (l Local) Env() string {
	if l.CondaEnv == "" {
		return local.DefaultCondaEnv
	}
	return l.CondaEnv
}

func secs(n int) time.Duration {
	return time.Duration(n) * time.Second
}
