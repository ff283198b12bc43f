package stack

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/trashcan/teslacam-stack/internal/cloudaws"
	"github.com/trashcan/teslacam-stack/internal/config"
	"github.com/trashcan/teslacam-stack/internal/templates"
)

const (
	// ParamLambdaCodeBucket is the template parameter receiving the lambda code bucket
	ParamLambdaCodeBucket = "LambdaCodeBucket"
	// ParamLambdaCodeKey is the template parameter receiving the lambda code key
	ParamLambdaCodeKey = "LambdaCodeKey"
)

var (
	// ErrBucketRequired is returned if the lambda bucket is missing and creating it was declined
	ErrBucketRequired = errors.New("lambda bucket does not exist and was not created")
	// ErrTemplateTooLarge is returned if the template must be uploaded but no lambda bucket is configured
	ErrTemplateTooLarge = errors.New("template is too large to pass inline and no lambda_bucket is configured")
)

// Customizer writes customized files from their .safe sources
type Customizer interface {
	Customize() ([]string, error)
}

// TemplateValidator validates a CloudFormation template
type TemplateValidator interface {
	Validate(ctx context.Context, template cloudaws.Template) error
}

// CloudSetup ensures the account resources the stack relies on exist
type CloudSetup interface {
	BucketExistsInRegion(ctx context.Context, bucket string) (bool, error)
	CreateBucket(ctx context.Context, bucket string) error
	ServiceLinkedRolesSetup(ctx context.Context) error
}

// Confirmer asks the user a yes/no question
type Confirmer interface {
	Confirm(question string) (bool, error)
}

// Packager builds the lambda zip
type Packager interface {
	Package(codeDir, deployDir, zipPath string) error
}

// PackagerFunc adapts a function to a Packager
type PackagerFunc func(codeDir, deployDir, zipPath string) error

// Package calls f
func (f PackagerFunc) Package(codeDir, deployDir, zipPath string) error {
	return f(codeDir, deployDir, zipPath)
}

// Uploader uploads artifacts to S3
type Uploader interface {
	Upload(ctx context.Context, bucket, prefix, file string) (string, error)
	URL(bucket, key string) string
}

// StackDeployer creates, updates and deletes the CloudFormation stack
type StackDeployer interface {
	Deploy(ctx context.Context, input cloudaws.DeployInput) error
	Delete(ctx context.Context, name string) error
}

// CloudSubscriber subscribes an email to the stack notifications
type CloudSubscriber interface {
	Subscribe(ctx context.Context, topic, email string) (bool, error)
}

// Clients are the collaborators a Stack deploys with
type Clients struct {
	Customizer Customizer
	Validator  TemplateValidator
	Setup      CloudSetup
	Confirmer  Confirmer
	Packager   Packager
	Uploader   Uploader
	Deployer   StackDeployer
	Subscriber CloudSubscriber
}

// Stack is a stack that can be deployed or removed
type Stack struct {
	config   *config.Deploy
	skipCode bool
	clients  Clients
}

// New returns an initialized Stack. With skipCode the lambda code is not packaged or uploaded and the
// stack keeps its current code location.
func New(config *config.Deploy, skipCode bool, clients Clients) *Stack {
	return &Stack{
		config:   config,
		skipCode: skipCode,
		clients:  clients,
	}
}

// Deploy customizes files, ensures the lambda bucket, uploads lambda code and creates or updates the
// stack
func (s *Stack) Deploy(ctx context.Context) error {
	written, err := s.clients.Customizer.Customize()
	if err != nil {
		return fmt.Errorf("failed to apply customizations: %w", err)
	}
	log.Infof("applied customizations to %v files", len(written))

	templateBody, err := os.ReadFile(s.config.CloudFormationTemplate)
	if err != nil {
		return fmt.Errorf("failed to read template %v: %w", s.config.CloudFormationTemplate, err)
	}
	template := cloudaws.Template{Body: string(templateBody)}
	inline := len(templateBody) <= cloudaws.MaxTemplateBodySize
	if !inline && s.config.LambdaBucket == "" {
		return fmt.Errorf("'%v': %w", s.config.CloudFormationTemplate, ErrTemplateTooLarge)
	}

	if inline {
		log.Infof("validating template %v", s.config.CloudFormationTemplate)
		if err := s.clients.Validator.Validate(ctx, template); err != nil {
			return err
		}
	}

	if s.config.LambdaBucket != "" {
		if err := s.ensureBucket(ctx); err != nil {
			return err
		}
	}

	if !inline {
		key, err := s.clients.Uploader.Upload(ctx, s.config.LambdaBucket, s.config.LambdaPrefix, s.config.CloudFormationTemplate)
		if err != nil {
			return err
		}
		template = cloudaws.Template{URL: s.clients.Uploader.URL(s.config.LambdaBucket, key)}
		log.Infof("validating template %v", template.URL)
		if err := s.clients.Validator.Validate(ctx, template); err != nil {
			return err
		}
	}

	if err := s.clients.Setup.ServiceLinkedRolesSetup(ctx); err != nil {
		return err
	}

	parameters, err := s.codeParameters(ctx)
	if err != nil {
		return err
	}

	if err := s.clients.Deployer.Deploy(ctx, cloudaws.DeployInput{
		StackName:  s.config.StackName,
		Template:   template,
		Parameters: parameters,
	}); err != nil {
		return err
	}
	log.Infof("successfully deployed stack %v", s.config.StackName)

	if s.config.Email == "" {
		return nil
	}
	subscribed, err := s.clients.Subscriber.Subscribe(ctx, s.config.StackName, s.config.Email)
	if err != nil {
		return err
	}
	if subscribed {
		log.Infof("successfully setup email notifications for %v - you'll "+
			"need to click link in confirmation email to get notifications.", s.config.Email)
	}
	return nil
}

// Remove deletes the stack
func (s *Stack) Remove(ctx context.Context) error {
	log.Infof("removing stack %v", s.config.StackName)
	if err := s.clients.Deployer.Delete(ctx, s.config.StackName); err != nil {
		return err
	}
	log.Infof("successfully removed stack %v", s.config.StackName)
	return nil
}

func (s *Stack) ensureBucket(ctx context.Context) error {
	bucket := s.config.LambdaBucket
	exists, err := s.clients.Setup.BucketExistsInRegion(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	log.Warnf("required s3 bucket %v does not exist in region %v", bucket, s.config.Region)
	create, err := s.clients.Confirmer.Confirm(fmt.Sprintf("Create %v", bucket))
	if err != nil {
		return err
	}
	if !create {
		return fmt.Errorf("'%v': %w", bucket, ErrBucketRequired)
	}
	return s.clients.Setup.CreateBucket(ctx, bucket)
}

func (s *Stack) codeParameters(ctx context.Context) ([]cloudaws.StackParameter, error) {
	if s.config.LambdaBucket == "" {
		return nil, nil
	}

	bucketParameter := cloudaws.StackParameter{Key: ParamLambdaCodeBucket, Value: s.config.LambdaBucket}
	if s.skipCode {
		log.Info("skipping lambda code deploy, keeping current code")
		return []cloudaws.StackParameter{
			bucketParameter,
			{Key: ParamLambdaCodeKey, UsePreviousValue: true},
		}, nil
	}

	zipPath := filepath.Join(filepath.Dir(filepath.Clean(s.config.DeployDir)), templates.DefaultLambdaZipFilename)
	if err := s.clients.Packager.Package(s.config.CodeDir, s.config.DeployDir, zipPath); err != nil {
		return nil, err
	}
	key, err := s.clients.Uploader.Upload(ctx, s.config.LambdaBucket, s.config.LambdaPrefix, zipPath)
	if err != nil {
		return nil, err
	}
	return []cloudaws.StackParameter{
		bucketParameter,
		{Key: ParamLambdaCodeKey, Value: key},
	}, nil
}
