package cloudaws

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultFulfillTimeout is how long to wait for a spot request to be fulfilled
	DefaultFulfillTimeout = 10 * time.Minute
	// DefaultRunningTimeout is how long to wait for an instance to reach running
	DefaultRunningTimeout = 10 * time.Minute
)

var (
	// ErrNoInstance is returned if a launch did not produce an instance id
	ErrNoInstance = errors.New("launch did not return an instance")
)

// LaunchSpec describes the instance to launch
type LaunchSpec struct {
	AMI                 string
	InstanceType        string
	SecurityGroup       string
	InstanceProfileName string
	// KeyPair is optional
	KeyPair string
	// UserData is the plain text user data, it is base64 encoded on launch
	UserData string
}

// LaunchAPI is the subset of the EC2 API used to launch, wait on and terminate instances
type LaunchAPI interface {
	ec2.DescribeInstancesAPIClient
	ec2.DescribeSpotInstanceRequestsAPIClient
	RequestSpotInstances(ctx context.Context, params *ec2.RequestSpotInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RequestSpotInstancesOutput, error)
	RunInstances(ctx context.Context, params *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error)
	TerminateInstances(ctx context.Context, params *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)
}

// LaunchClient launches single instances and follows them until they terminate
type LaunchClient struct {
	ec2Client      LaunchAPI
	fulfillTimeout time.Duration
	runningTimeout time.Duration
}

// NewLaunchClient returns an initialized LaunchClient
func NewLaunchClient(ctx context.Context, region string) (*LaunchClient, error) {
	cfg, err := LoadConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	return &LaunchClient{
		ec2Client:      ec2.NewFromConfig(cfg),
		fulfillTimeout: DefaultFulfillTimeout,
		runningTimeout: DefaultRunningTimeout,
	}, nil
}

// RequestSpot requests a single spot instance, waits for the request to be fulfilled and returns the
// instance id
func (c *LaunchClient) RequestSpot(ctx context.Context, spec LaunchSpec) (string, error) {
	launchSpecification := &ec2types.RequestSpotLaunchSpecification{
		ImageId:            aws.String(spec.AMI),
		InstanceType:       ec2types.InstanceType(spec.InstanceType),
		SecurityGroups:     []string{spec.SecurityGroup},
		IamInstanceProfile: &ec2types.IamInstanceProfileSpecification{Name: aws.String(spec.InstanceProfileName)},
		UserData:           aws.String(encodeUserData(spec.UserData)),
	}
	if spec.KeyPair != "" {
		launchSpecification.KeyName = aws.String(spec.KeyPair)
	}

	output, err := c.ec2Client.RequestSpotInstances(ctx, &ec2.RequestSpotInstancesInput{
		InstanceCount:       aws.Int32(1),
		LaunchSpecification: launchSpecification,
	})
	if err != nil {
		return "", fmt.Errorf("failed to request spot instance: %w", err)
	}
	if len(output.SpotInstanceRequests) == 0 {
		return "", fmt.Errorf("spot request: %w", ErrNoInstance)
	}
	requestID := aws.ToString(output.SpotInstanceRequests[0].SpotInstanceRequestId)
	log.Infof("spot instance request %v submitted", requestID)

	describeInput := &ec2.DescribeSpotInstanceRequestsInput{SpotInstanceRequestIds: []string{requestID}}
	waiter := ec2.NewSpotInstanceRequestFulfilledWaiter(c.ec2Client)
	if err := waiter.Wait(ctx, describeInput, c.fulfillTimeout); err != nil {
		return "", fmt.Errorf("spot instance request %v was not fulfilled: %w", requestID, err)
	}
	log.Infof("spot instance request %v fulfilled", requestID)

	described, err := c.ec2Client.DescribeSpotInstanceRequests(ctx, describeInput)
	if err != nil {
		return "", fmt.Errorf("failed to describe spot instance request %v: %w", requestID, err)
	}
	if len(described.SpotInstanceRequests) == 0 || described.SpotInstanceRequests[0].InstanceId == nil {
		return "", fmt.Errorf("spot request %v: %w", requestID, ErrNoInstance)
	}
	return aws.ToString(described.SpotInstanceRequests[0].InstanceId), nil
}

// RunOnDemand launches a single on demand instance that terminates when it shuts down and returns its id
func (c *LaunchClient) RunOnDemand(ctx context.Context, spec LaunchSpec) (string, error) {
	input := &ec2.RunInstancesInput{
		ImageId:                           aws.String(spec.AMI),
		InstanceType:                      ec2types.InstanceType(spec.InstanceType),
		SecurityGroups:                    []string{spec.SecurityGroup},
		IamInstanceProfile:                &ec2types.IamInstanceProfileSpecification{Name: aws.String(spec.InstanceProfileName)},
		UserData:                          aws.String(encodeUserData(spec.UserData)),
		MinCount:                          aws.Int32(1),
		MaxCount:                          aws.Int32(1),
		InstanceInitiatedShutdownBehavior: ec2types.ShutdownBehaviorTerminate,
	}
	if spec.KeyPair != "" {
		input.KeyName = aws.String(spec.KeyPair)
	}

	output, err := c.ec2Client.RunInstances(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run instance: %w", err)
	}
	if len(output.Instances) == 0 {
		return "", fmt.Errorf("run instances: %w", ErrNoInstance)
	}
	return aws.ToString(output.Instances[0].InstanceId), nil
}

// WaitRunning waits until an instance is running
func (c *LaunchClient) WaitRunning(ctx context.Context, instanceID string) error {
	waiter := ec2.NewInstanceRunningWaiter(c.ec2Client)
	if err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{instanceID}}, c.runningTimeout); err != nil {
		return fmt.Errorf("instance %v did not reach running: %w", instanceID, err)
	}
	return nil
}

// WaitTerminated waits up to timeout for an instance to terminate
func (c *LaunchClient) WaitTerminated(ctx context.Context, instanceID string, timeout time.Duration) error {
	waiter := ec2.NewInstanceTerminatedWaiter(c.ec2Client)
	if err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{instanceID}}, timeout); err != nil {
		return fmt.Errorf("instance %v did not terminate within %v: %w", instanceID, timeout, err)
	}
	return nil
}

// Terminate terminates an instance
func (c *LaunchClient) Terminate(ctx context.Context, instanceID string) error {
	output, err := c.ec2Client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return fmt.Errorf("failed to terminate ec2 instance '%v': output:%v error:%w", instanceID, output, err)
	}
	return nil
}

func encodeUserData(userData string) string {
	return base64.StdEncoding.EncodeToString([]byte(userData))
}
