package launcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/aws/aws-lambda-go/events"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	log "github.com/sirupsen/logrus"
	"github.com/trashcan/teslacam-stack/internal/cloudaws"
	"github.com/trashcan/teslacam-stack/internal/config"
	"github.com/trashcan/teslacam-stack/internal/instances"
	"github.com/trashcan/teslacam-stack/internal/templates"
)

const (
	// DefaultWaitAttempts is how many times the wait for instance termination is tried
	DefaultWaitAttempts = 2
	// TerminateReserve is the time kept back from the handler deadline to terminate an overrunning instance
	TerminateReserve = 30 * time.Second
	// TerminateTimeout bounds the terminate call made after the termination waits give up
	TerminateTimeout = 10 * time.Second
)

var (
	// ErrMissingArgs is returned if a filter accepts an event without returning any values
	ErrMissingArgs = errors.New("filter accepted event without returning values")
)

// Hooks are the use case specific steps of a launch
type Hooks interface {
	// Filter returns the values the user data is rendered with, or nil to skip the event
	Filter(ctx context.Context, event events.SNSEvent) ([]string, error)
	PreProcess(ctx context.Context, args []string) error
	Launched(ctx context.Context, args []string, instanceID string) error
	PostProcess(ctx context.Context, args []string, instanceID string) error
}

// ImageFinder finds the newest image matching filters
type ImageFinder interface {
	Newest(ctx context.Context, filters []ec2types.Filter) (*cloudaws.Image, error)
}

// OutputReader reads CloudFormation stack outputs
type OutputReader interface {
	Outputs(ctx context.Context, name string) (map[string]string, error)
}

// InstanceLauncher starts and watches EC2 instances
type InstanceLauncher interface {
	RequestSpot(ctx context.Context, spec cloudaws.LaunchSpec) (string, error)
	RunOnDemand(ctx context.Context, spec cloudaws.LaunchSpec) (string, error)
	WaitRunning(ctx context.Context, instanceID string) error
	WaitTerminated(ctx context.Context, instanceID string, timeout time.Duration) error
	Terminate(ctx context.Context, instanceID string) error
}

// Result describes what a Handle call did
type Result struct {
	Skipped    bool     `json:"skipped"`
	Args       []string `json:"args,omitempty"`
	InstanceID string   `json:"instance_id,omitempty"`
	// TimedOut is set if the instance ran past every termination wait and was terminated
	TimedOut bool `json:"timed_out"`
}

// Launcher runs one instance per accepted event and waits for it to finish
type Launcher struct {
	config       *config.Lambda
	hooks        Hooks
	images       ImageFinder
	outputs      OutputReader
	instances    InstanceLauncher
	waitAttempts uint
}

// New returns an initialized Launcher
func New(config *config.Lambda, hooks Hooks, images ImageFinder, outputs OutputReader, instances InstanceLauncher) *Launcher {
	return &Launcher{
		config:       config,
		hooks:        hooks,
		images:       images,
		outputs:      outputs,
		instances:    instances,
		waitAttempts: DefaultWaitAttempts,
	}
}

// Handle launches an instance for event if the filter accepts it, waits for the instance to terminate
// and runs the post processing hook. An instance still running after every wait is terminated and
// post processing is skipped.
func (l *Launcher) Handle(ctx context.Context, event events.SNSEvent) (*Result, error) {
	args, err := l.hooks.Filter(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("event filter failed: %w", err)
	}
	if args == nil {
		log.Info("event did not pass filter, nothing to launch")
		return &Result{Skipped: true}, nil
	}
	if len(args) == 0 {
		return nil, ErrMissingArgs
	}
	result := &Result{Args: args}

	spec, err := l.launchSpec(ctx, args)
	if err != nil {
		return nil, err
	}

	if err := l.hooks.PreProcess(ctx, args); err != nil {
		return nil, fmt.Errorf("pre process failed: %w", err)
	}

	var instanceID string
	if l.config.Spot {
		instanceID, err = l.instances.RequestSpot(ctx, spec)
	} else {
		instanceID, err = l.instances.RunOnDemand(ctx, spec)
	}
	if err != nil {
		return nil, err
	}
	result.InstanceID = instanceID
	log.Infof("instance %v created", instanceID)

	if err := l.instances.WaitRunning(ctx, instanceID); err != nil {
		return nil, err
	}
	start := time.Now()
	log.Infof("instance %v is running", instanceID)

	if err := l.hooks.Launched(ctx, args, instanceID); err != nil {
		return nil, fmt.Errorf("launched hook failed: %w", err)
	}

	if err := l.waitTerminated(ctx, instanceID); err != nil {
		log.Warnf("instance %v running too long (%v), terminating: %v", instanceID, time.Since(start).Round(time.Second), err)
		terminateCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), TerminateTimeout)
		defer cancel()
		if err := l.instances.Terminate(terminateCtx, instanceID); err != nil {
			return nil, err
		}
		result.TimedOut = true
		return result, nil
	}
	log.Infof("instance %v terminated after %v", instanceID, time.Since(start).Round(time.Second))

	if err := l.hooks.PostProcess(ctx, args, instanceID); err != nil {
		return nil, fmt.Errorf("post process failed: %w", err)
	}
	return result, nil
}

func (l *Launcher) launchSpec(ctx context.Context, args []string) (cloudaws.LaunchSpec, error) {
	userData, err := templates.RenderUserData(l.config.UserData, templates.NewUserData(l.config, args))
	if err != nil {
		return cloudaws.LaunchSpec{}, err
	}
	log.Debugf("rendered user data:\n%v", userData)

	ami, err := l.resolveAMI(ctx)
	if err != nil {
		return cloudaws.LaunchSpec{}, err
	}

	securityGroup, instanceProfile := l.config.SecurityGroup, l.config.InstanceProfileName
	if l.config.StackName != "" {
		outputs, err := l.outputs.Outputs(ctx, l.config.StackName)
		if err != nil {
			return cloudaws.LaunchSpec{}, err
		}
		if v, ok := outputs[securityGroup]; ok {
			securityGroup = v
		}
		if v, ok := outputs[instanceProfile]; ok {
			instanceProfile = v
		}
	}

	return cloudaws.LaunchSpec{
		AMI:                 ami,
		InstanceType:        l.config.InstanceType,
		SecurityGroup:       securityGroup,
		InstanceProfileName: instanceProfile,
		KeyPair:             l.config.KeyPair,
		UserData:            userData,
	}, nil
}

func (l *Launcher) resolveAMI(ctx context.Context) (string, error) {
	if l.config.AMI != config.LatestAMI {
		return l.config.AMI, nil
	}
	arch := instances.ArchX86
	if family := instances.Supported.GetInstanceTypeDetails(l.config.InstanceType); family != nil {
		arch = family.Arch
	}
	image, err := l.images.Newest(ctx, cloudaws.DefaultImageFilters(arch))
	if err != nil {
		return "", fmt.Errorf("failed to find latest ami: %w", err)
	}
	log.Infof("using latest ami %v (%v)", image.ID, image.Name)
	return image.ID, nil
}

// waitTerminated stops waiting TerminateReserve before the ctx deadline so the instance can still be
// terminated within the handler's lifetime.
func (l *Launcher) waitTerminated(ctx context.Context, instanceID string) error {
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, deadline.Add(-TerminateReserve))
		defer cancel()
	}
	return retry.Do(
		func() error {
			if err := ctx.Err(); err != nil {
				return retry.Unrecoverable(err)
			}
			return l.instances.WaitTerminated(ctx, instanceID, l.waitBudget(ctx))
		},
		retry.Context(ctx),
		retry.Attempts(l.waitAttempts),
		retry.Delay(0),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Infof("instance %v still running after %v, waiting again", instanceID, l.config.WaitTimeout)
		}),
	)
}

// waitBudget is the configured wait timeout, shortened to what is left before the ctx deadline
func (l *Launcher) waitBudget(ctx context.Context) time.Duration {
	timeout := l.config.WaitTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	return timeout
}
