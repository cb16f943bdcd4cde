package config

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	awsbackend "github.com/glemaitre/ramp-board-1/cloud/backend/aws"
	"github.com/glemaitre/ramp-board-1/worker/remote"
)

const (
	profileNameField         = "profile_name"
	accessKeyIDField         = "access_key_id"
	secretAccessKeyField     = "secret_access_key"
	regionNameField          = "region_name"
	amiImageIDField          = "ami_image_id"
	amiImageNameField        = "ami_image_name"
	amiUserNameField         = "ami_user_name"
	instanceTypeField        = "instance_type"
	keyPathField             = "key_path"
	keyNameField             = "key_name"
	securityGroupField       = "security_group"
	remoteRampKitFolderField = "remote_ramp_kit_folder"
	localPredictionsField    = "local_predictions_folder"
	checkStatusIntervalField = "check_status_interval_secs"
	checkFinishedField       = "check_finished_training_interval_secs"
	localLogFolderField      = "local_log_folder"
	trainLoopIntervalField   = "train_loop_interval_secs"
	memoryProfilingField     = "memory_profiling"
	hooksSection             = "hooks"
)

var allFields = []string{
	profileNameField, accessKeyIDField, secretAccessKeyField, regionNameField,
	amiImageIDField, amiImageNameField, amiUserNameField, instanceTypeField,
	keyPathField, keyNameField, securityGroupField, remoteRampKitFolderField,
	localPredictionsField, checkStatusIntervalField, checkFinishedField,
	localLogFolderField, trainLoopIntervalField, memoryProfilingField, hooksSection,
}

// Fields that may be left out, the rules between them are checked apart.
var optionalFields = map[string]bool{
	hooksSection:         true,
	amiImageIDField:      true,
	amiImageNameField:    true,
	profileNameField:     true,
	accessKeyIDField:     true,
	secretAccessKeyField: true,
}

// AWS is the aws section, used by remote workers.
type AWS struct {
	ProfileName     string `yaml:"profile_name"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	RegionName      string `yaml:"region_name"`

	AMIImageID    string `yaml:"ami_image_id"`
	AMIImageName  string `yaml:"ami_image_name"`
	AMIUserName   string `yaml:"ami_user_name"`
	InstanceType  string `yaml:"instance_type"`
	KeyPath       string `yaml:"key_path"`
	KeyName       string `yaml:"key_name"`
	SecurityGroup string `yaml:"security_group"`

	RemoteRampKitFolder    string `yaml:"remote_ramp_kit_folder"`
	LocalPredictionsFolder string `yaml:"local_predictions_folder"`
	LocalLogFolder         string `yaml:"local_log_folder"`

	CheckStatusIntervalSecs           int  `yaml:"check_status_interval_secs"`
	CheckFinishedTrainingIntervalSecs int  `yaml:"check_finished_training_interval_secs"`
	TrainLoopIntervalSecs             int  `yaml:"train_loop_interval_secs"`
	MemoryProfiling                   bool `yaml:"memory_profiling"`

	Hooks map[string]string `yaml:"hooks"`

	// keys present in the file, empty values included
	present map[string]bool
}

type awsFields AWS

func (a *AWS) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return errors.New("aws section must be a mapping")
	}
	present := map[string]bool{}
	known := map[string]bool{}
	for _, f := range allFields {
		known[f] = true
	}
	for i := 0; i < len(value.Content); i += 2 {
		k := value.Content[i].Value
		if !known[k] {
			return errors.Errorf("invalid field : %q", k)
		}
		present[k] = true
	}
	var fields awsFields
	if err := value.Decode(&fields); err != nil {
		return err
	}
	*a = AWS(fields)
	a.present = present
	return nil
}

func (a *AWS) has(field string) bool {
	if a.present != nil {
		return a.present[field]
	}
	// built in code rather than read from a file
	switch field {
	case profileNameField:
		return a.ProfileName != ""
	case accessKeyIDField:
		return a.AccessKeyID != ""
	case secretAccessKeyField:
		return a.SecretAccessKey != ""
	case amiImageIDField:
		return a.AMIImageID != ""
	case amiImageNameField:
		return a.AMIImageName != ""
	}
	return true
}

// Validate applies the rules of the aws section: every field is required
// except hooks, exactly one of the image id or name is given, and either a
// profile or both access keys are.
func (a *AWS) Validate() error {
	var missing []string
	for _, f := range allFields {
		if !optionalFields[f] && !a.has(f) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return errors.Errorf("required field %q missing from config", missing[0])
	}
	if a.has(amiImageNameField) && a.has(amiImageIDField) {
		return errors.Errorf("the fields %q and %q cannot be both specified at the same time, please specify only one of them",
			amiImageNameField, amiImageIDField)
	}
	if !a.has(amiImageNameField) && !a.has(amiImageIDField) {
		return errors.Errorf("please specify either %q or %q in config", amiImageNameField, amiImageIDField)
	}
	if a.has(profileNameField) && (a.has(accessKeyIDField) || a.has(secretAccessKeyField)) {
		return errors.Errorf("please specify either %q or both of %q and %q",
			profileNameField, accessKeyIDField, secretAccessKeyField)
	}
	if !a.has(profileNameField) && !(a.has(accessKeyIDField) && a.has(secretAccessKeyField)) {
		return errors.Errorf("please specify both %q and %q", accessKeyIDField, secretAccessKeyField)
	}
	for name := range a.Hooks {
		if !isHook(name) {
			return errors.Errorf("invalid hook name : %s, hooks should be one of these : %s",
				name, strings.Join(remote.Hooks, ","))
		}
	}
	return nil
}

func isHook(name string) bool {
	for _, h := range remote.Hooks {
		if h == name {
			return true
		}
	}
	return false
}

func (a *AWS) BackendConfig() awsbackend.Config {
	return awsbackend.Config{
		ProfileName:     a.ProfileName,
		AccessKeyID:     a.AccessKeyID,
		SecretAccessKey: a.SecretAccessKey,
		RegionName:      a.RegionName,
		AMIImageID:      a.AMIImageID,
		AMIImageName:    a.AMIImageName,
		AMIUserName:     a.AMIUserName,
		InstanceType:    a.InstanceType,
		KeyPath:         a.KeyPath,
		KeyName:         a.KeyName,
		SecurityGroup:   a.SecurityGroup,
	}
}

func (a *AWS) RemoteConfig() remote.Config {
	return remote.Config{
		RemoteKitDir:          a.RemoteRampKitFolder,
		CheckStatusInterval:   secs(a.CheckStatusIntervalSecs),
		CheckFinishedInterval: secs(a.CheckFinishedTrainingIntervalSecs),
		MemoryProfiling:       a.MemoryProfiling,
		Hooks:                 a.Hooks,
	}
}
