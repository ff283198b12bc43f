package stack_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trashcan/teslacam-stack/internal/cloudaws"
	"github.com/trashcan/teslacam-stack/internal/config"
	"github.com/trashcan/teslacam-stack/internal/stack"
)

var (
	errCustomize = errors.New("customize error")
	errValidate  = errors.New("validate error")
	errSetup     = errors.New("cloud setup error")
	errPackage   = errors.New("package error")
	errUpload    = errors.New("upload error")
	errDeploy    = errors.New("stack deploy error")
	errSubscribe = errors.New("cloud subscriber error")
)

func TestDeploy(t *testing.T) {
	tests := map[string]struct {
		noBucket     bool
		skipCode     bool
		clients      func(c *stack.Clients)
		expectedErr  error
		expectedKey  string
		expectedKeep bool
	}{
		"deploy with no errors uploads code": {
			expectedKey: "teslacam/abc.zip",
		},
		"deploy without lambda bucket passes no code parameters": {
			noBucket: true,
		},
		"skip code keeps previous code key": {
			skipCode:     true,
			expectedKeep: true,
		},
		"customize error": {
			clients:     func(c *stack.Clients) { c.Customizer = &fakeCustomizer{err: errCustomize} },
			expectedErr: errCustomize,
		},
		"validate error": {
			clients:     func(c *stack.Clients) { c.Validator = &fakeValidator{err: errValidate} },
			expectedErr: errValidate,
		},
		"missing bucket is created when confirmed": {
			clients: func(c *stack.Clients) {
				c.Setup = &fakeCloudSetup{exists: false}
				c.Confirmer = &fakeConfirmer{confirm: true}
			},
			expectedKey: "teslacam/abc.zip",
		},
		"missing bucket declined": {
			clients: func(c *stack.Clients) {
				c.Setup = &fakeCloudSetup{exists: false}
				c.Confirmer = &fakeConfirmer{confirm: false}
			},
			expectedErr: stack.ErrBucketRequired,
		},
		"cloud setup error": {
			clients:     func(c *stack.Clients) { c.Setup = &fakeCloudSetup{exists: true, err: errSetup} },
			expectedErr: errSetup,
		},
		"package error": {
			clients:     func(c *stack.Clients) { c.Packager = stack.PackagerFunc(func(string, string, string) error { return errPackage }) },
			expectedErr: errPackage,
		},
		"upload error": {
			clients:     func(c *stack.Clients) { c.Uploader = &fakeUploader{err: errUpload} },
			expectedErr: errUpload,
		},
		"stack deploy error": {
			clients:     func(c *stack.Clients) { c.Deployer = &fakeDeployer{err: errDeploy} },
			expectedErr: errDeploy,
		},
		"deploy with subscribe false": {
			clients:     func(c *stack.Clients) { c.Subscriber = &fakeCloudSubscriber{subscribed: false} },
			expectedKey: "teslacam/abc.zip",
		},
		"cloud subscribe error": {
			clients:     func(c *stack.Clients) { c.Subscriber = &fakeCloudSubscriber{err: errSubscribe} },
			expectedErr: errSubscribe,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := testDeployConfig(t, "Resources: {}\n")
			if tc.noBucket {
				cfg.LambdaBucket = ""
			}
			deployer := &fakeDeployer{}
			clients := stack.Clients{
				Customizer: &fakeCustomizer{},
				Validator:  &fakeValidator{},
				Setup:      &fakeCloudSetup{exists: true},
				Confirmer:  &fakeConfirmer{},
				Packager:   stack.PackagerFunc(func(string, string, string) error { return nil }),
				Uploader:   &fakeUploader{key: "teslacam/abc.zip"},
				Deployer:   deployer,
				Subscriber: &fakeCloudSubscriber{subscribed: true},
			}
			if tc.clients != nil {
				tc.clients(&clients)
			}
			if d, ok := clients.Deployer.(*fakeDeployer); ok {
				deployer = d
			}

			err := stack.New(cfg, tc.skipCode, clients).Deploy(context.Background())
			assert.ErrorIs(t, err, tc.expectedErr)
			if tc.expectedErr != nil {
				return
			}

			require.Len(t, deployer.inputs, 1)
			input := deployer.inputs[0]
			assert.Equal(t, cfg.StackName, input.StackName)
			assert.Equal(t, "Resources: {}\n", input.Template.Body)
			parameters := map[string]cloudaws.StackParameter{}
			for _, p := range input.Parameters {
				parameters[p.Key] = p
			}
			if tc.noBucket {
				assert.Empty(t, parameters)
				return
			}
			assert.Equal(t, cfg.LambdaBucket, parameters[stack.ParamLambdaCodeBucket].Value)
			assert.Equal(t, tc.expectedKey, parameters[stack.ParamLambdaCodeKey].Value)
			assert.Equal(t, tc.expectedKeep, parameters[stack.ParamLambdaCodeKey].UsePreviousValue)
		})
	}
}

func TestDeploy_CreatesMissingBucket(t *testing.T) {
	setup := &fakeCloudSetup{exists: false}
	confirmer := &fakeConfirmer{confirm: true}
	err := stack.New(testDeployConfig(t, "Resources: {}\n"), true, stack.Clients{
		Customizer: &fakeCustomizer{},
		Validator:  &fakeValidator{},
		Setup:      setup,
		Confirmer:  confirmer,
		Deployer:   &fakeDeployer{},
	}).Deploy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"teslacam-code"}, setup.created)
	assert.Contains(t, confirmer.questions[0], "teslacam-code")
}

func TestDeploy_LargeTemplateIsUploaded(t *testing.T) {
	body := "Resources: {}\n" + strings.Repeat("#", cloudaws.MaxTemplateBodySize)
	cfg := testDeployConfig(t, body)
	validator := &fakeValidator{}
	deployer := &fakeDeployer{}
	err := stack.New(cfg, true, stack.Clients{
		Customizer: &fakeCustomizer{},
		Validator:  validator,
		Setup:      &fakeCloudSetup{exists: true},
		Uploader:   &fakeUploader{key: "teslacam/template.yaml"},
		Deployer:   deployer,
	}).Deploy(context.Background())
	require.NoError(t, err)

	expected := cloudaws.Template{URL: "https://teslacam-code.s3.amazonaws.com/teslacam/template.yaml"}
	assert.Equal(t, []cloudaws.Template{expected}, validator.templates)
	require.Len(t, deployer.inputs, 1)
	assert.Equal(t, expected, deployer.inputs[0].Template)
}

func TestDeploy_LargeTemplateWithoutBucket(t *testing.T) {
	cfg := testDeployConfig(t, strings.Repeat("#", cloudaws.MaxTemplateBodySize+1))
	cfg.LambdaBucket = ""
	err := stack.New(cfg, false, stack.Clients{Customizer: &fakeCustomizer{}}).Deploy(context.Background())
	assert.ErrorIs(t, err, stack.ErrTemplateTooLarge)
}

func TestRemove(t *testing.T) {
	tests := map[string]struct {
		deployer    *fakeDeployer
		expectedErr error
	}{
		"remove with no errors": {deployer: &fakeDeployer{}},
		"stack not found":       {deployer: &fakeDeployer{err: cloudaws.ErrStackNotFound}, expectedErr: cloudaws.ErrStackNotFound},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := &config.Deploy{StackName: "teslacam"}
			err := stack.New(cfg, false, stack.Clients{Deployer: tc.deployer}).Remove(context.Background())
			assert.ErrorIs(t, err, tc.expectedErr)
			assert.Equal(t, []string{"teslacam"}, tc.deployer.deleted)
		})
	}
}

func testDeployConfig(t *testing.T, template string) *config.Deploy {
	t.Helper()
	dir := t.TempDir()
	templatePath := filepath.Join(dir, "teslacam.yaml")
	require.NoError(t, os.WriteFile(templatePath, []byte(template), 0644))
	return &config.Deploy{
		Region:                 "us-west-2",
		StackName:              "teslacam",
		CloudFormationTemplate: templatePath,
		LambdaBucket:           "teslacam-code",
		LambdaPrefix:           "teslacam",
		CodeDir:                filepath.Join(dir, "build"),
		DeployDir:              filepath.Join(dir, "deploy"),
		Email:                  "me@example.com",
	}
}

type fakeCustomizer struct {
	err error
}

func (f *fakeCustomizer) Customize() ([]string, error) {
	return nil, f.err
}

type fakeValidator struct {
	templates []cloudaws.Template
	err       error
}

func (f *fakeValidator) Validate(ctx context.Context, template cloudaws.Template) error {
	f.templates = append(f.templates, template)
	return f.err
}

type fakeCloudSetup struct {
	exists  bool
	created []string
	err     error
}

func (f *fakeCloudSetup) BucketExistsInRegion(ctx context.Context, bucket string) (bool, error) {
	return f.exists, nil
}

func (f *fakeCloudSetup) CreateBucket(ctx context.Context, bucket string) error {
	f.created = append(f.created, bucket)
	return nil
}

func (f *fakeCloudSetup) ServiceLinkedRolesSetup(ctx context.Context) error {
	return f.err
}

type fakeConfirmer struct {
	confirm   bool
	questions []string
}

func (f *fakeConfirmer) Confirm(question string) (bool, error) {
	f.questions = append(f.questions, question)
	return f.confirm, nil
}

type fakeUploader struct {
	key string
	err error
}

func (f *fakeUploader) Upload(ctx context.Context, bucket, prefix, file string) (string, error) {
	return f.key, f.err
}

func (f *fakeUploader) URL(bucket, key string) string {
	return "https://" + bucket + ".s3.amazonaws.com/" + key
}

type fakeDeployer struct {
	inputs  []cloudaws.DeployInput
	deleted []string
	err     error
}

func (f *fakeDeployer) Deploy(ctx context.Context, input cloudaws.DeployInput) error {
	f.inputs = append(f.inputs, input)
	return f.err
}

func (f *fakeDeployer) Delete(ctx context.Context, name string) error {
	f.deleted = append(f.deleted, name)
	return f.err
}

type fakeCloudSubscriber struct {
	subscribed bool
	err        error
}

func (f *fakeCloudSubscriber) Subscribe(ctx context.Context, topic, email string) (bool, error) {
	return f.subscribed, f.err
}
