// Package aws implements backend.Backend on EC2. Node lifecycle and tags go
// through the EC2 API, files and commands go through rsync and ssh.
package aws

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/glemaitre/ramp-board-1/cloud/backend"
	"github.com/glemaitre/ramp-board-1/runner/execer"
)

const (
	// Every node launched here carries this tag, listing only looks at those.
	ManagedTagKey   = "ramp_aws_backend_instance"
	ManagedTagValue = "1"

	notFoundCode = "InvalidInstanceID.NotFound"
	sshErrorCode = 255
)

// ec2API is the part of *ec2.Client the backend calls.
type ec2API interface {
	RunInstances(ctx context.Context, in *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error)
	TerminateInstances(ctx context.Context, in *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)
	DescribeInstances(ctx context.Context, in *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	DescribeInstanceStatus(ctx context.Context, in *ec2.DescribeInstanceStatusInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstanceStatusOutput, error)
	CreateTags(ctx context.Context, in *ec2.CreateTagsInput, optFns ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error)
	DeleteTags(ctx context.Context, in *ec2.DeleteTagsInput, optFns ...func(*ec2.Options)) (*ec2.DeleteTagsOutput, error)
	DescribeTags(ctx context.Context, in *ec2.DescribeTagsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeTagsOutput, error)
	DescribeImages(ctx context.Context, in *ec2.DescribeImagesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error)
}

// Config holds what the backend needs to reach the account and its nodes.
type Config struct {
	ProfileName     string
	AccessKeyID     string
	SecretAccessKey string
	RegionName      string

	// Exactly one of the two is set.
	AMIImageID   string
	AMIImageName string

	AMIUserName   string
	InstanceType  string
	KeyPath       string
	KeyName       string
	SecurityGroup string
}

type Backend struct {
	cfg Config
	api ec2API
	ex  execer.Execer

	mu      sync.Mutex
	imageID string
	addrs   map[backend.NodeId]string
}

// New loads AWS credentials from the profile, or from the static keys when no
// profile is given.
func New(ctx context.Context, cfg Config, ex execer.Execer) (*Backend, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.RegionName)}
	if cfg.ProfileName != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.ProfileName))
	} else {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't load aws configuration")
	}
	return NewWithClient(cfg, ec2.NewFromConfig(awsCfg), ex), nil
}

func NewWithClient(cfg Config, api ec2API, ex execer.Execer) *Backend {
	return &Backend{
		cfg:     cfg,
		api:     api,
		ex:      ex,
		imageID: cfg.AMIImageID,
		addrs:   map[backend.NodeId]string{},
	}
}

func (b *Backend) resolveImage(ctx context.Context) (string, error) {
	b.mu.Lock()
	id := b.imageID
	b.mu.Unlock()
	if id != "" {
		return id, nil
	}
	out, err := b.api.DescribeImages(ctx, &ec2.DescribeImagesInput{
		Filters: []types.Filter{{Name: aws.String("name"), Values: []string{b.cfg.AMIImageName}}},
	})
	if err != nil {
		return "", errors.Wrapf(err, "couldn't look up image %s", b.cfg.AMIImageName)
	}
	switch len(out.Images) {
	case 0:
		return "", backend.Permanent(errors.Errorf("no image named %s", b.cfg.AMIImageName))
	case 1:
	default:
		return "", backend.Permanent(errors.Errorf("%d images named %s, expected one", len(out.Images), b.cfg.AMIImageName))
	}
	id = aws.ToString(out.Images[0].ImageId)
	b.mu.Lock()
	b.imageID = id
	b.mu.Unlock()
	return id, nil
}

func toTags(tags map[string]string) []types.Tag {
	out := make([]types.Tag, 0, len(tags))
	for k, v := range tags {
		out = append(out, types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	return out
}

func fromTags(tags []types.Tag) map[string]string {
	out := map[string]string{}
	for _, t := range tags {
		out[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return out
}

func (b *Backend) LaunchNodes(ctx context.Context, n int, tags map[string]string) ([]backend.Node, error) {
	image, err := b.resolveImage(ctx)
	if err != nil {
		return nil, err
	}
	all := map[string]string{ManagedTagKey: ManagedTagValue}
	for k, v := range tags {
		all[k] = v
	}
	in := &ec2.RunInstancesInput{
		ImageId:      aws.String(image),
		MinCount:     aws.Int32(int32(n)),
		MaxCount:     aws.Int32(int32(n)),
		InstanceType: types.InstanceType(b.cfg.InstanceType),
		KeyName:      aws.String(b.cfg.KeyName),
		TagSpecifications: []types.TagSpecification{{
			ResourceType: types.ResourceTypeInstance,
			Tags:         toTags(all),
		}},
	}
	if b.cfg.SecurityGroup != "" {
		in.SecurityGroups = []string{b.cfg.SecurityGroup}
	}
	out, err := b.api.RunInstances(ctx, in)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't launch instances")
	}
	nodes := make([]backend.Node, 0, len(out.Instances))
	for _, inst := range out.Instances {
		nodes = append(nodes, backend.Node{
			Id:      backend.NodeId(aws.ToString(inst.InstanceId)),
			Address: aws.ToString(inst.PublicIpAddress),
			Tags:    fromTags(inst.Tags),
		})
	}
	log.WithFields(
		log.Fields{
			"count": len(nodes),
			"image": image,
			"type":  b.cfg.InstanceType,
		}).Info("Launched nodes")
	return nodes, nil
}

func (b *Backend) TerminateNode(ctx context.Context, id backend.NodeId) error {
	_, err := b.api.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: []string{string(id)}})
	if err != nil {
		return wrapNotFound(err, id)
	}
	b.mu.Lock()
	delete(b.addrs, id)
	b.mu.Unlock()
	log.WithFields(
		log.Fields{
			"node": id,
		}).Info("Terminated node")
	return nil
}

func (b *Backend) describe(ctx context.Context, in *ec2.DescribeInstancesInput) ([]types.Instance, error) {
	out, err := b.api.DescribeInstances(ctx, in)
	if err != nil {
		return nil, err
	}
	var insts []types.Instance
	for _, r := range out.Reservations {
		insts = append(insts, r.Instances...)
	}
	return insts, nil
}

func (b *Backend) findNodes(ctx context.Context, filters ...types.Filter) ([]backend.NodeId, error) {
	filters = append(filters,
		types.Filter{Name: aws.String("tag:" + ManagedTagKey), Values: []string{ManagedTagValue}},
		types.Filter{Name: aws.String("instance-state-name"), Values: []string{"running"}},
	)
	insts, err := b.describe(ctx, &ec2.DescribeInstancesInput{Filters: filters})
	if err != nil {
		return nil, errors.Wrap(err, "couldn't list instances")
	}
	ids := make([]backend.NodeId, 0, len(insts))
	for _, inst := range insts {
		ids = append(ids, backend.NodeId(aws.ToString(inst.InstanceId)))
	}
	return ids, nil
}

func (b *Backend) ListNodeIDs(ctx context.Context) ([]backend.NodeId, error) {
	return b.findNodes(ctx)
}

func (b *Backend) FindNodesByTag(ctx context.Context, key, value string) ([]backend.NodeId, error) {
	return b.findNodes(ctx, types.Filter{Name: aws.String("tag:" + key), Values: []string{value}})
}

// NodeStatus reports the first detail of the instance and system checks.
func (b *Backend) NodeStatus(ctx context.Context, id backend.NodeId) (*backend.NodeStatus, error) {
	out, err := b.api.DescribeInstanceStatus(ctx, &ec2.DescribeInstanceStatusInput{InstanceIds: []string{string(id)}})
	if err != nil {
		return nil, wrapNotFound(err, id)
	}
	if len(out.InstanceStatuses) == 0 {
		return nil, nil
	}
	st := out.InstanceStatuses[0]
	return &backend.NodeStatus{
		InstanceCheck: firstDetail(st.InstanceStatus),
		SystemCheck:   firstDetail(st.SystemStatus),
	}, nil
}

func firstDetail(s *types.InstanceStatusSummary) string {
	if s == nil || len(s.Details) == 0 {
		return ""
	}
	return string(s.Details[0].Status)
}

func (b *Backend) TagNode(ctx context.Context, id backend.NodeId, key, value string) error {
	_, err := b.api.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{string(id)},
		Tags:      toTags(map[string]string{key: value}),
	})
	return wrapNotFound(err, id)
}

func (b *Backend) DeleteTag(ctx context.Context, id backend.NodeId, key string) error {
	_, err := b.api.DeleteTags(ctx, &ec2.DeleteTagsInput{
		Resources: []string{string(id)},
		Tags:      []types.Tag{{Key: aws.String(key)}},
	})
	return wrapNotFound(err, id)
}

func (b *Backend) ListTags(ctx context.Context, id backend.NodeId) (map[string]string, error) {
	out, err := b.api.DescribeTags(ctx, &ec2.DescribeTagsInput{
		Filters: []types.Filter{{Name: aws.String("resource-id"), Values: []string{string(id)}}},
	})
	if err != nil {
		return nil, wrapNotFound(err, id)
	}
	tags := map[string]string{}
	for _, t := range out.Tags {
		tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return tags, nil
}

// address returns the public IP of a node, cached once known.
func (b *Backend) address(ctx context.Context, id backend.NodeId) (string, error) {
	b.mu.Lock()
	addr, ok := b.addrs[id]
	b.mu.Unlock()
	if ok {
		return addr, nil
	}
	insts, err := b.describe(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{string(id)}})
	if err != nil {
		return "", wrapNotFound(err, id)
	}
	if len(insts) == 0 {
		return "", errors.Wrapf(backend.ErrNodeNotFound, "%s", id)
	}
	addr = aws.ToString(insts[0].PublicIpAddress)
	if addr == "" {
		return "", errors.Errorf("node %s has no public address yet", id)
	}
	b.mu.Lock()
	b.addrs[id] = addr
	b.mu.Unlock()
	return addr, nil
}

func (b *Backend) sshOptions() []string {
	return []string{"-o", "StrictHostKeyChecking=no", "-i", b.cfg.KeyPath}
}

func (b *Backend) host(addr string) string {
	return fmt.Sprintf("%s@%s", b.cfg.AMIUserName, addr)
}

func (b *Backend) rsync(ctx context.Context, id backend.NodeId, src, dst string) error {
	argv := append([]string{"rsync", "-e", "ssh " + strings.Join(b.sshOptions(), " ")}, "-avzP", src, dst)
	if _, err := execer.Output(ctx, b.ex, execer.Command{Argv: argv, Tag: string(id)}); err != nil {
		return errors.Wrapf(err, "rsync %s -> %s", src, dst)
	}
	return nil
}

// Upload copies localPath into remotePath on the node.
func (b *Backend) Upload(ctx context.Context, id backend.NodeId, localPath, remotePath string) error {
	addr, err := b.address(ctx, id)
	if err != nil {
		return err
	}
	return b.rsync(ctx, id, localPath, b.host(addr)+":"+remotePath)
}

// Download copies remotePath on the node into localPath.
func (b *Backend) Download(ctx context.Context, id backend.NodeId, remotePath, localPath string) error {
	addr, err := b.address(ctx, id)
	if err != nil {
		return err
	}
	return b.rsync(ctx, id, b.host(addr)+":"+remotePath, localPath)
}

func (b *Backend) ssh(ctx context.Context, id backend.NodeId, cmd string) (string, execer.ProcessStatus, error) {
	addr, err := b.address(ctx, id)
	if err != nil {
		return "", execer.ProcessStatus{}, err
	}
	argv := append([]string{"ssh"}, b.sshOptions()...)
	argv = append(argv, b.host(addr), cmd)
	out, st, err := execer.Run(ctx, b.ex, execer.Command{Argv: argv, Tag: string(id)})
	if err == nil && st.ExitCode == sshErrorCode {
		err = errors.Errorf("ssh to %s failed", id)
	}
	return out, st, err
}

func (b *Backend) RunCommand(ctx context.Context, id backend.NodeId, cmd string) (string, error) {
	out, st, err := b.ssh(ctx, id, cmd)
	if err != nil {
		return out, err
	}
	if st.ExitCode != 0 {
		return out, backend.Permanent(errors.Errorf("%q on %s exited with code %d", cmd, id, st.ExitCode))
	}
	return out, nil
}

func (b *Backend) RunCommandStatus(ctx context.Context, id backend.NodeId, cmd string) (int, error) {
	_, st, err := b.ssh(ctx, id, cmd)
	if err != nil {
		return -1, err
	}
	return st.ExitCode, nil
}

func wrapNotFound(err error, id backend.NodeId) error {
	if err == nil {
		return nil
	}
	var ae smithy.APIError
	if errors.As(err, &ae) && ae.ErrorCode() == notFoundCode {
		return errors.Wrapf(backend.ErrNodeNotFound, "%s", id)
	}
	return errors.Wrapf(err, "node %s", id)
}
