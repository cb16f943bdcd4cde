package aws

import (
	"context"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glemaitre/ramp-board-1/cloud/backend"
	"github.com/glemaitre/ramp-board-1/runner/execer/execers"
)

type fakeEC2 struct {
	images    []types.Image
	instances []types.Instance
	statuses  []types.InstanceStatus
	tags      []types.TagDescription
	err       error

	run        []*ec2.RunInstancesInput
	terminated []string
	created    []*ec2.CreateTagsInput
	deleted    []*ec2.DeleteTagsInput
	described  []*ec2.DescribeInstancesInput
}

func (f *fakeEC2) RunInstances(ctx context.Context, in *ec2.RunInstancesInput, _ ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error) {
	f.run = append(f.run, in)
	var insts []types.Instance
	for i := int32(0); i < aws.ToInt32(in.MaxCount); i++ {
		insts = append(insts, types.Instance{
			InstanceId:      aws.String("i-new"),
			PublicIpAddress: aws.String("10.0.0.1"),
			Tags:            in.TagSpecifications[0].Tags,
		})
	}
	return &ec2.RunInstancesOutput{Instances: insts}, f.err
}

func (f *fakeEC2) TerminateInstances(ctx context.Context, in *ec2.TerminateInstancesInput, _ ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error) {
	f.terminated = append(f.terminated, in.InstanceIds...)
	return &ec2.TerminateInstancesOutput{}, f.err
}

func (f *fakeEC2) DescribeInstances(ctx context.Context, in *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	f.described = append(f.described, in)
	if f.err != nil {
		return nil, f.err
	}
	return &ec2.DescribeInstancesOutput{Reservations: []types.Reservation{{Instances: f.instances}}}, nil
}

func (f *fakeEC2) DescribeInstanceStatus(ctx context.Context, in *ec2.DescribeInstanceStatusInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstanceStatusOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &ec2.DescribeInstanceStatusOutput{InstanceStatuses: f.statuses}, nil
}

func (f *fakeEC2) CreateTags(ctx context.Context, in *ec2.CreateTagsInput, _ ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error) {
	f.created = append(f.created, in)
	return &ec2.CreateTagsOutput{}, f.err
}

func (f *fakeEC2) DeleteTags(ctx context.Context, in *ec2.DeleteTagsInput, _ ...func(*ec2.Options)) (*ec2.DeleteTagsOutput, error) {
	f.deleted = append(f.deleted, in)
	return &ec2.DeleteTagsOutput{}, f.err
}

func (f *fakeEC2) DescribeTags(ctx context.Context, in *ec2.DescribeTagsInput, _ ...func(*ec2.Options)) (*ec2.DescribeTagsOutput, error) {
	return &ec2.DescribeTagsOutput{Tags: f.tags}, f.err
}

func (f *fakeEC2) DescribeImages(ctx context.Context, in *ec2.DescribeImagesInput, _ ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error) {
	return &ec2.DescribeImagesOutput{Images: f.images}, f.err
}

func testConfig() Config {
	return Config{
		RegionName:    "us-west-2",
		AMIImageName:  "ramp-kit-image",
		AMIUserName:   "ubuntu",
		InstanceType:  "t2.micro",
		KeyPath:       "/keys/ramp.pem",
		KeyName:       "ramp",
		SecurityGroup: "launch-wizard-1",
	}
}

func TestLaunchResolvesImageAndTags(t *testing.T) {
	api := &fakeEC2{images: []types.Image{{ImageId: aws.String("ami-123")}}}
	b := NewWithClient(testConfig(), api, execers.NewScriptedExecer())

	nodes, err := b.LaunchNodes(context.Background(), 1, map[string]string{"Name": "starting_kit"})
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, backend.NodeId("i-new"), nodes[0].Id)
	assert.Equal(t, "10.0.0.1", nodes[0].Address)
	assert.Equal(t, ManagedTagValue, nodes[0].Tags[ManagedTagKey])
	assert.Equal(t, "starting_kit", nodes[0].Tags["Name"])

	require.Len(t, api.run, 1)
	assert.Equal(t, "ami-123", aws.ToString(api.run[0].ImageId))
	assert.Equal(t, []string{"launch-wizard-1"}, api.run[0].SecurityGroups)
	assert.Equal(t, types.InstanceType("t2.micro"), api.run[0].InstanceType)
}

func TestImageLookupNeedsExactlyOneMatch(t *testing.T) {
	for _, images := range [][]types.Image{
		nil,
		{{ImageId: aws.String("ami-1")}, {ImageId: aws.String("ami-2")}},
	} {
		api := &fakeEC2{images: images}
		b := NewWithClient(testConfig(), api, execers.NewScriptedExecer())
		_, err := b.LaunchNodes(context.Background(), 1, nil)
		assert.Error(t, err)
		assert.True(t, backend.IsPermanent(err))
		assert.Empty(t, api.run)
	}
}

func TestImageIDSkipsLookup(t *testing.T) {
	cfg := testConfig()
	cfg.AMIImageName = ""
	cfg.AMIImageID = "ami-fixed"
	api := &fakeEC2{}
	b := NewWithClient(cfg, api, execers.NewScriptedExecer())
	_, err := b.LaunchNodes(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "ami-fixed", aws.ToString(api.run[0].ImageId))
}

func TestNodeStatus(t *testing.T) {
	api := &fakeEC2{}
	b := NewWithClient(testConfig(), api, execers.NewScriptedExecer())

	st, err := b.NodeStatus(context.Background(), "i-1")
	assert.NoError(t, err)
	assert.Nil(t, st)

	api.statuses = []types.InstanceStatus{{
		InstanceStatus: &types.InstanceStatusSummary{Details: []types.InstanceStatusDetails{{Status: types.StatusTypePassed}}},
		SystemStatus:   &types.InstanceStatusSummary{Details: []types.InstanceStatusDetails{{Status: types.StatusTypeInitializing}}},
	}}
	st, err = b.NodeStatus(context.Background(), "i-1")
	require.NoError(t, err)
	assert.True(t, st.Ready())
	assert.Equal(t, "initializing", st.SystemCheck)
}

func TestNotFoundIsPermanent(t *testing.T) {
	api := &fakeEC2{err: &smithy.GenericAPIError{Code: notFoundCode, Message: "gone"}}
	b := NewWithClient(testConfig(), api, execers.NewScriptedExecer())
	err := b.TerminateNode(context.Background(), "i-gone")
	assert.Equal(t, backend.ErrNodeNotFound, errors.Cause(err))
	assert.True(t, backend.IsPermanent(err))
}

func TestFindNodesByTagFiltersManagedRunning(t *testing.T) {
	api := &fakeEC2{instances: []types.Instance{{InstanceId: aws.String("i-1")}, {InstanceId: aws.String("i-2")}}}
	b := NewWithClient(testConfig(), api, execers.NewScriptedExecer())

	ids, err := b.FindNodesByTag(context.Background(), "Name", "starting_kit")
	require.NoError(t, err)
	assert.Equal(t, []backend.NodeId{"i-1", "i-2"}, ids)

	filters := map[string][]string{}
	for _, f := range api.described[0].Filters {
		filters[aws.ToString(f.Name)] = f.Values
	}
	assert.Equal(t, []string{"starting_kit"}, filters["tag:Name"])
	assert.Equal(t, []string{ManagedTagValue}, filters["tag:"+ManagedTagKey])
	assert.Equal(t, []string{"running"}, filters["instance-state-name"])
}

func TestTags(t *testing.T) {
	api := &fakeEC2{tags: []types.TagDescription{{Key: aws.String("Name"), Value: aws.String("sub")}}}
	b := NewWithClient(testConfig(), api, execers.NewScriptedExecer())
	ctx := context.Background()

	require.NoError(t, b.TagNode(ctx, "i-1", "Name", "sub"))
	require.NoError(t, b.DeleteTag(ctx, "i-1", "Name"))
	tags, err := b.ListTags(ctx, "i-1")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"Name": "sub"}, tags)
	assert.Equal(t, []string{"i-1"}, api.created[0].Resources)
	assert.Equal(t, "Name", aws.ToString(api.deleted[0].Tags[0].Key))
}

func TestTransfersAndCommandsGoOverSSH(t *testing.T) {
	api := &fakeEC2{instances: []types.Instance{{InstanceId: aws.String("i-1"), PublicIpAddress: aws.String("1.2.3.4")}}}
	ex := execers.NewScriptedExecer()
	ex.On(execers.Contains("ssh", "screen -ls"), execers.Reply{Stdout: "1\n"})
	ex.On(execers.Contains("ssh", "false"), execers.Reply{ExitCode: 1})
	b := NewWithClient(testConfig(), api, ex)
	ctx := context.Background()

	require.NoError(t, b.Upload(ctx, "i-1", "/kit/submissions/sub", "kit/submissions/"))
	require.NoError(t, b.Download(ctx, "i-1", "kit/submissions/sub/log", "/logs/sub/log"))
	out, err := b.RunCommand(ctx, "i-1", "screen -ls")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)

	code, err := b.RunCommandStatus(ctx, "i-1", "false")
	require.NoError(t, err)
	assert.Equal(t, 1, code)
	_, err = b.RunCommand(ctx, "i-1", "false")
	assert.Error(t, err)

	assert.True(t, ex.Ran("rsync", "-avzP", "/kit/submissions/sub", "ubuntu@1.2.3.4:kit/submissions/"))
	assert.True(t, ex.Ran("rsync", "ubuntu@1.2.3.4:kit/submissions/sub/log", "/logs/sub/log"))
	cmds := ex.Commands()
	assert.Equal(t, "ssh -o StrictHostKeyChecking=no -i /keys/ramp.pem", cmds[0].Argv[2])
	last := cmds[len(cmds)-1]
	assert.Equal(t, "ubuntu@1.2.3.4", last.Argv[len(last.Argv)-2])
	assert.True(t, strings.HasSuffix(last.String(), "false"))
	// the address is looked up once
	assert.Len(t, api.described, 1)
}

func TestSSHFailureIsAnError(t *testing.T) {
	api := &fakeEC2{instances: []types.Instance{{InstanceId: aws.String("i-1"), PublicIpAddress: aws.String("1.2.3.4")}}}
	ex := execers.NewScriptedExecer()
	ex.On(execers.Argv0("ssh"), execers.Reply{ExitCode: sshErrorCode})
	b := NewWithClient(testConfig(), api, ex)
	_, err := b.RunCommandStatus(context.Background(), "i-1", "ls")
	assert.Error(t, err)
	assert.False(t, backend.IsPermanent(err))
}
