package cloudaws

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLaunchAPI struct {
	spotInput     *ec2.RequestSpotInstancesInput
	runInput      *ec2.RunInstancesInput
	instanceState ec2types.InstanceStateName
	terminated    []string
}

func (f *fakeLaunchAPI) DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	return &ec2.DescribeInstancesOutput{Reservations: []ec2types.Reservation{{Instances: []ec2types.Instance{{
		InstanceId: aws.String(params.InstanceIds[0]),
		State:      &ec2types.InstanceState{Name: f.instanceState},
	}}}}}, nil
}

func (f *fakeLaunchAPI) DescribeSpotInstanceRequests(ctx context.Context, params *ec2.DescribeSpotInstanceRequestsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSpotInstanceRequestsOutput, error) {
	return &ec2.DescribeSpotInstanceRequestsOutput{SpotInstanceRequests: []ec2types.SpotInstanceRequest{{
		SpotInstanceRequestId: aws.String(params.SpotInstanceRequestIds[0]),
		State:                 ec2types.SpotInstanceStateActive,
		Status:                &ec2types.SpotInstanceStatus{Code: aws.String("fulfilled")},
		InstanceId:            aws.String("i-spot"),
	}}}, nil
}

func (f *fakeLaunchAPI) RequestSpotInstances(ctx context.Context, params *ec2.RequestSpotInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RequestSpotInstancesOutput, error) {
	f.spotInput = params
	return &ec2.RequestSpotInstancesOutput{SpotInstanceRequests: []ec2types.SpotInstanceRequest{{
		SpotInstanceRequestId: aws.String("sir-1"),
	}}}, nil
}

func (f *fakeLaunchAPI) RunInstances(ctx context.Context, params *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error) {
	f.runInput = params
	return &ec2.RunInstancesOutput{Instances: []ec2types.Instance{{InstanceId: aws.String("i-ondemand")}}}, nil
}

func (f *fakeLaunchAPI) TerminateInstances(ctx context.Context, params *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error) {
	f.terminated = append(f.terminated, params.InstanceIds...)
	return &ec2.TerminateInstancesOutput{}, nil
}

var testLaunchSpec = LaunchSpec{
	AMI:                 "ami-1",
	InstanceType:        "c5d.large",
	SecurityGroup:       "teslacam-sg",
	InstanceProfileName: "teslacam-profile",
	UserData:            "#!/bin/bash\necho hi\n",
}

func newTestLaunchClient(api LaunchAPI) *LaunchClient {
	return &LaunchClient{ec2Client: api, fulfillTimeout: time.Minute, runningTimeout: time.Minute}
}

func TestLaunchClient_RequestSpot(t *testing.T) {
	api := &fakeLaunchAPI{}
	spec := testLaunchSpec
	spec.KeyPair = "debug"

	instanceID, err := newTestLaunchClient(api).RequestSpot(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, "i-spot", instanceID)

	launch := api.spotInput.LaunchSpecification
	assert.Equal(t, int32(1), aws.ToInt32(api.spotInput.InstanceCount))
	assert.Equal(t, "ami-1", aws.ToString(launch.ImageId))
	assert.Equal(t, []string{"teslacam-sg"}, launch.SecurityGroups)
	assert.Equal(t, "teslacam-profile", aws.ToString(launch.IamInstanceProfile.Name))
	assert.Equal(t, "debug", aws.ToString(launch.KeyName))
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte(testLaunchSpec.UserData)), aws.ToString(launch.UserData))
}

func TestLaunchClient_RunOnDemand(t *testing.T) {
	api := &fakeLaunchAPI{}

	instanceID, err := newTestLaunchClient(api).RunOnDemand(context.Background(), testLaunchSpec)
	require.NoError(t, err)
	assert.Equal(t, "i-ondemand", instanceID)

	assert.Equal(t, int32(1), aws.ToInt32(api.runInput.MinCount))
	assert.Equal(t, int32(1), aws.ToInt32(api.runInput.MaxCount))
	assert.Equal(t, ec2types.ShutdownBehaviorTerminate, api.runInput.InstanceInitiatedShutdownBehavior)
	assert.Nil(t, api.runInput.KeyName)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte(testLaunchSpec.UserData)), aws.ToString(api.runInput.UserData))
}

func TestLaunchClient_Wait(t *testing.T) {
	ctx := context.Background()

	running := newTestLaunchClient(&fakeLaunchAPI{instanceState: ec2types.InstanceStateNameRunning})
	assert.NoError(t, running.WaitRunning(ctx, "i-1"))

	terminated := newTestLaunchClient(&fakeLaunchAPI{instanceState: ec2types.InstanceStateNameTerminated})
	assert.NoError(t, terminated.WaitTerminated(ctx, "i-1", time.Minute))
}

func TestLaunchClient_Terminate(t *testing.T) {
	api := &fakeLaunchAPI{}
	require.NoError(t, newTestLaunchClient(api).Terminate(context.Background(), "i-1"))
	assert.Equal(t, []string{"i-1"}, api.terminated)
}
