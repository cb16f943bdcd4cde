package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glemaitre/ramp-board-1/domain"
	"github.com/glemaitre/ramp-board-1/worker"
)

const localConfig = `
ramp:
  event_name: iris_test
  kits_dir: /ramp/kits
  data_dir: /ramp/data
  predictions_dir: /ramp/predictions
  logs_dir: /ramp/logs
store:
  sqlite_path: /ramp/ramp.db
dispatcher:
  n_worker: 4
  hunger_policy: sleep
  hunger_sleep_secs: 2
local:
  conda_env: ramp-iris
  timeout_secs: 3600
  abort_grace_secs: 5
`

const awsSection = `
aws:
  profile_name: ramp
  region_name: us-west-2
  ami_image_name: ramp-kits-image
  ami_user_name: ubuntu
  instance_type: g3.4xlarge
  key_path: /home/ramp/.ssh/ramp.pem
  key_name: ramp
  security_group: launch-wizard-1
  remote_ramp_kit_folder: ~/ramp-kits/iris
  local_predictions_folder: /ramp/aws/predictions
  local_log_folder: /ramp/aws/logs
  check_status_interval_secs: 60
  check_finished_training_interval_secs: 30
  train_loop_interval_secs: 10
  memory_profiling: true
  hooks:
    successful_training: notify.sh
`

func awsConfig(edit func(string) string) string {
	return "ramp:\n  event_name: iris_test\n  kits_dir: /ramp/kits\nworker:\n  type: aws\n" + edit(awsSection)
}

func keep(s string) string { return s }

func TestLoadLocal(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(p, []byte(localConfig), 0666))

	c, err := Load(p)
	require.NoError(t, err)
	kind, err := c.Kind()
	require.NoError(t, err)
	assert.Equal(t, worker.KindLocal, kind)
	assert.Equal(t, "ramp-iris", c.Local.Env())
	assert.Equal(t, time.Hour, c.Local.Timeout())
	assert.Equal(t, 5, c.Local.AbortGraceSecs)
	assert.Equal(t, "/ramp/ramp.db", c.Store.SQLitePath)

	dc := c.DispatcherConfig()
	assert.Equal(t, "iris_test", dc.EventName)
	assert.Equal(t, 4, dc.NWorker)
	assert.Equal(t, domain.HungerSleep, dc.HungerPolicy)
	assert.Equal(t, 2*time.Second, dc.HungerSleep)
	assert.Equal(t, "/ramp/predictions", dc.Paths.Predictions)
	assert.Equal(t, "/ramp/kits", dc.Paths.Kits)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestUnknownFieldsAreRejected(t *testing.T) {
	_, err := Parse([]byte(localConfig + "\nextra: 1\n"))
	assert.Error(t, err)

	_, err = Parse([]byte(awsConfig(func(s string) string { return s + "  bogus: 1\n" })))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid field : "bogus"`)
}

func TestLocalNeedsOutputFolders(t *testing.T) {
	_, err := Parse([]byte(strings.Replace(localConfig, "  logs_dir: /ramp/logs\n", "", 1)))
	assert.Error(t, err)
}

func TestDefaults(t *testing.T) {
	c, err := Parse([]byte("ramp:\n  event_name: e\n  kits_dir: /k\n  predictions_dir: /p\n  logs_dir: /l\n"))
	require.NoError(t, err)
	assert.Equal(t, "base", c.Local.Env())
	assert.Equal(t, time.Duration(0), c.Local.Timeout())
	assert.Equal(t, domain.HungerNone, c.DispatcherConfig().HungerPolicy)
}

func TestBadHungerPolicy(t *testing.T) {
	_, err := Parse([]byte(strings.Replace(localConfig, "hunger_policy: sleep", "hunger_policy: nap", 1)))
	assert.Error(t, err)
}

func TestLoadAWS(t *testing.T) {
	c, err := Parse([]byte(awsConfig(keep)))
	require.NoError(t, err)
	kind, _ := c.Kind()
	assert.Equal(t, worker.KindAWS, kind)

	bc := c.AWS.BackendConfig()
	assert.Equal(t, "ramp", bc.ProfileName)
	assert.Equal(t, "ramp-kits-image", bc.AMIImageName)
	assert.Equal(t, "g3.4xlarge", bc.InstanceType)

	rc := c.AWS.RemoteConfig()
	assert.Equal(t, "~/ramp-kits/iris", rc.RemoteKitDir)
	assert.Equal(t, time.Minute, rc.CheckStatusInterval)
	assert.Equal(t, 30*time.Second, rc.CheckFinishedInterval)
	assert.True(t, rc.MemoryProfiling)
	assert.Equal(t, "notify.sh", rc.Hooks["successful_training"])

	dc := c.DispatcherConfig()
	assert.Equal(t, "/ramp/aws/predictions", dc.Paths.Predictions)
	assert.Equal(t, "/ramp/aws/logs", dc.Paths.Logs)
	assert.Equal(t, 10*time.Second, dc.Interval)
}

func TestAWSValidation(t *testing.T) {
	for name, tc := range map[string]struct {
		edit func(string) string
		want string
	}{
		"missing section": {
			edit: func(string) string { return "" },
			want: `expects "aws" section`,
		},
		"missing required": {
			edit: func(s string) string { return strings.Replace(s, "  key_name: ramp\n", "", 1) },
			want: `required field "key_name" missing`,
		},
		"both images": {
			edit: func(s string) string { return s + "  ami_image_id: ami-123\n" },
			want: "cannot be both specified",
		},
		"no image": {
			edit: func(s string) string { return strings.Replace(s, "  ami_image_name: ramp-kits-image\n", "", 1) },
			want: `please specify either "ami_image_name" or "ami_image_id"`,
		},
		"profile and keys": {
			edit: func(s string) string { return s + "  access_key_id: AKIA\n" },
			want: `please specify either "profile_name"`,
		},
		"one key only": {
			edit: func(s string) string {
				return strings.Replace(s, "  profile_name: ramp\n", "  access_key_id: AKIA\n", 1)
			},
			want: `please specify both "access_key_id" and "secret_access_key"`,
		},
		"bad hook": {
			edit: func(s string) string { return s + "    on_boot: boot.sh\n" },
			want: "invalid hook name : on_boot",
		},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(awsConfig(tc.edit)))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestAWSKeysInsteadOfProfile(t *testing.T) {
	c, err := Parse([]byte(awsConfig(func(s string) string {
		return strings.Replace(s, "  profile_name: ramp\n", "  access_key_id: AKIA\n  secret_access_key: secret\n", 1)
	})))
	require.NoError(t, err)
	assert.Equal(t, "AKIA", c.AWS.BackendConfig().AccessKeyID)
}

func TestAWSBuiltInCode(t *testing.T) {
	a := &AWS{
		ProfileName:  "ramp",
		AMIImageID:   "ami-1",
		AMIImageName: "name",
	}
	assert.Error(t, a.Validate())
	a.AMIImageName = ""
	assert.NoError(t, a.Validate())
}
