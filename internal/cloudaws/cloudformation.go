package cloudaws

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	cfntypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"
	log "github.com/sirupsen/logrus"
)

const (
	// MaxTemplateBodySize is the largest template CloudFormation accepts inline, larger templates must
	// be passed by S3 URL
	MaxTemplateBodySize = 51200
	// DefaultStackWaitTimeout is how long to wait for a stack create, update or delete to finish
	DefaultStackWaitTimeout = 30 * time.Minute

	noUpdatesMessage = "No updates are to be performed"
	notExistMessage  = "does not exist"
)

var (
	// ErrStackNotFound is returned if the named stack does not exist
	ErrStackNotFound = errors.New("stack does not exist")
	// ErrEmptyTemplate is returned if neither a template body nor url is set
	ErrEmptyTemplate = errors.New("template body or url is required")
)

// StackAPI is the subset of the CloudFormation API used to manage a stack
type StackAPI interface {
	cloudformation.DescribeStacksAPIClient
	ValidateTemplate(ctx context.Context, params *cloudformation.ValidateTemplateInput, optFns ...func(*cloudformation.Options)) (*cloudformation.ValidateTemplateOutput, error)
	CreateStack(ctx context.Context, params *cloudformation.CreateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error)
	UpdateStack(ctx context.Context, params *cloudformation.UpdateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error)
	DeleteStack(ctx context.Context, params *cloudformation.DeleteStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DeleteStackOutput, error)
}

// Template is a CloudFormation template passed either inline or by S3 URL
type Template struct {
	Body string
	URL  string
}

// StackParameter is a single stack parameter. UsePreviousValue keeps the value of an existing stack.
type StackParameter struct {
	Key              string
	Value            string
	UsePreviousValue bool
}

// DeployInput describes a stack to create or update
type DeployInput struct {
	StackName  string
	Template   Template
	Parameters []StackParameter
}

// StackClient creates, updates, inspects and deletes CloudFormation stacks
type StackClient struct {
	cfnClient   StackAPI
	waitTimeout time.Duration
}

// NewStackClient returns an initialized StackClient
func NewStackClient(ctx context.Context, region string) (*StackClient, error) {
	cfg, err := LoadConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	return &StackClient{
		cfnClient:   cloudformation.NewFromConfig(cfg),
		waitTimeout: DefaultStackWaitTimeout,
	}, nil
}

// Validate checks a template with CloudFormation
func (c *StackClient) Validate(ctx context.Context, template Template) error {
	input := &cloudformation.ValidateTemplateInput{}
	switch {
	case template.URL != "":
		input.TemplateURL = aws.String(template.URL)
	case template.Body != "":
		input.TemplateBody = aws.String(template.Body)
	default:
		return ErrEmptyTemplate
	}

	output, err := c.cfnClient.ValidateTemplate(ctx, input)
	if err != nil {
		return fmt.Errorf("cloudformation template validation failed: %w", err)
	}
	log.Infof("template is valid: %v parameters, capabilities %v", len(output.Parameters), output.Capabilities)
	return nil
}

// Deploy creates the stack if it does not exist, otherwise updates it, and waits for the operation to
// finish. An update with no changes is not an error.
func (c *StackClient) Deploy(ctx context.Context, input DeployInput) error {
	if input.Template.Body == "" && input.Template.URL == "" {
		return ErrEmptyTemplate
	}

	exists, err := c.exists(ctx, input.StackName)
	if err != nil {
		return err
	}

	if !exists {
		return c.create(ctx, input)
	}
	return c.update(ctx, input)
}

func (c *StackClient) create(ctx context.Context, input DeployInput) error {
	createInput := &cloudformation.CreateStackInput{
		StackName:    aws.String(input.StackName),
		Capabilities: []cfntypes.Capability{cfntypes.CapabilityCapabilityNamedIam},
		Parameters:   toCfnParameters(input.Parameters, false),
	}
	if input.Template.URL != "" {
		createInput.TemplateURL = aws.String(input.Template.URL)
	} else {
		createInput.TemplateBody = aws.String(input.Template.Body)
	}

	log.Infof("creating stack %v", input.StackName)
	if _, err := c.cfnClient.CreateStack(ctx, createInput); err != nil {
		return fmt.Errorf("failed to create stack %v: %w", input.StackName, err)
	}

	waiter := cloudformation.NewStackCreateCompleteWaiter(c.cfnClient)
	if err := waiter.Wait(ctx, &cloudformation.DescribeStacksInput{StackName: aws.String(input.StackName)}, c.waitTimeout); err != nil {
		return fmt.Errorf("stack %v did not finish creating: %w", input.StackName, err)
	}
	log.Infof("stack %v created", input.StackName)
	return nil
}

func (c *StackClient) update(ctx context.Context, input DeployInput) error {
	updateInput := &cloudformation.UpdateStackInput{
		StackName:    aws.String(input.StackName),
		Capabilities: []cfntypes.Capability{cfntypes.CapabilityCapabilityNamedIam},
		Parameters:   toCfnParameters(input.Parameters, true),
	}
	if input.Template.URL != "" {
		updateInput.TemplateURL = aws.String(input.Template.URL)
	} else {
		updateInput.TemplateBody = aws.String(input.Template.Body)
	}

	log.Infof("updating stack %v", input.StackName)
	if _, err := c.cfnClient.UpdateStack(ctx, updateInput); err != nil {
		if isValidationError(err, noUpdatesMessage) {
			log.Infof("stack %v is already up to date", input.StackName)
			return nil
		}
		return fmt.Errorf("failed to update stack %v: %w", input.StackName, err)
	}

	waiter := cloudformation.NewStackUpdateCompleteWaiter(c.cfnClient)
	if err := waiter.Wait(ctx, &cloudformation.DescribeStacksInput{StackName: aws.String(input.StackName)}, c.waitTimeout); err != nil {
		return fmt.Errorf("stack %v did not finish updating: %w", input.StackName, err)
	}
	log.Infof("stack %v updated", input.StackName)
	return nil
}

// Outputs returns the outputs of a stack keyed by output key
func (c *StackClient) Outputs(ctx context.Context, name string) (map[string]string, error) {
	stack, err := c.describe(ctx, name)
	if err != nil {
		return nil, err
	}
	outputs := map[string]string{}
	for _, output := range stack.Outputs {
		outputs[aws.ToString(output.OutputKey)] = aws.ToString(output.OutputValue)
	}
	return outputs, nil
}

// Delete deletes a stack and waits for the delete to finish
func (c *StackClient) Delete(ctx context.Context, name string) error {
	if _, err := c.describe(ctx, name); err != nil {
		return err
	}

	log.Infof("deleting stack %v", name)
	if _, err := c.cfnClient.DeleteStack(ctx, &cloudformation.DeleteStackInput{StackName: aws.String(name)}); err != nil {
		return fmt.Errorf("failed to delete stack %v: %w", name, err)
	}

	waiter := cloudformation.NewStackDeleteCompleteWaiter(c.cfnClient)
	if err := waiter.Wait(ctx, &cloudformation.DescribeStacksInput{StackName: aws.String(name)}, c.waitTimeout); err != nil {
		return fmt.Errorf("stack %v did not finish deleting: %w", name, err)
	}
	log.Infof("stack %v deleted", name)
	return nil
}

func (c *StackClient) exists(ctx context.Context, name string) (bool, error) {
	stack, err := c.describe(ctx, name)
	if errors.Is(err, ErrStackNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	// a stack whose first create failed can only be deleted, not updated
	if stack.StackStatus == cfntypes.StackStatusRollbackComplete {
		return false, fmt.Errorf("stack %v is in state %v and must be removed before deploying again", name, stack.StackStatus)
	}
	return true, nil
}

func (c *StackClient) describe(ctx context.Context, name string) (*cfntypes.Stack, error) {
	output, err := c.cfnClient.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{StackName: aws.String(name)})
	if err != nil {
		if isValidationError(err, notExistMessage) {
			return nil, fmt.Errorf("'%v': %w", name, ErrStackNotFound)
		}
		return nil, fmt.Errorf("failed to describe stack %v: %w", name, err)
	}
	if len(output.Stacks) == 0 {
		return nil, fmt.Errorf("'%v': %w", name, ErrStackNotFound)
	}
	return &output.Stacks[0], nil
}

func toCfnParameters(parameters []StackParameter, update bool) []cfntypes.Parameter {
	var output []cfntypes.Parameter
	for _, p := range parameters {
		if p.UsePreviousValue {
			if update {
				output = append(output, cfntypes.Parameter{ParameterKey: aws.String(p.Key), UsePreviousValue: aws.Bool(true)})
			}
			continue
		}
		output = append(output, cfntypes.Parameter{ParameterKey: aws.String(p.Key), ParameterValue: aws.String(p.Value)})
	}
	return output
}

func isValidationError(err error, message string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.ErrorCode() == "ValidationError" && strings.Contains(apiErr.ErrorMessage(), message)
}
