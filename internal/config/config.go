package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/trashcan/teslacam-stack/internal/instances"
	"gopkg.in/yaml.v2"
)

const (
	// LatestAMI is the ami value that asks for the newest Amazon Linux 2 image at launch time
	LatestAMI = "latest_ami"
	// DefaultDeployFile is the default deploy parameters file
	DefaultDeployFile = "deploy_parameters.yaml"
	// DefaultLambdaFile is the default lambda parameters file
	DefaultLambdaFile = "parameters.yaml"
	// DefaultCustomizationsFile is the default customizations file
	DefaultCustomizationsFile = "customizations.yaml"
	// DefaultWaitTimeout is how long a single wait for instance termination lasts
	DefaultWaitTimeout = 10 * time.Minute
	// MaxPresignExpiry is the longest lifetime S3 allows for a presigned URL
	MaxPresignExpiry = 7 * 24 * time.Hour
	// MinDuration is the shortest wait_timeout or presign_expiry accepted
	MinDuration = time.Minute
)

var (
	// ErrMissingField is returned if a required config field is empty
	ErrMissingField = errors.New("missing required config field")
	// ErrDurationTooShort is returned if a duration field is below MinDuration, usually a bare number read as nanoseconds
	ErrDurationTooShort = errors.New("duration must be at least 1m and carry a unit (e.g. 10m)")
)

// Deploy contains the settings used to deploy the stack
type Deploy struct {
	// Region is the region to deploy the stack to
	Region string `yaml:"region"`
	// StackName is the name of the CloudFormation stack
	StackName string `yaml:"stackname"`
	// CloudFormationTemplate is the path to the stack template
	CloudFormationTemplate string `yaml:"cloudformation_template"`
	// LambdaBucket is the bucket lambda code is uploaded to. Optional.
	LambdaBucket string `yaml:"lambda_bucket"`
	// LambdaPrefix is the key prefix lambda code is uploaded under
	LambdaPrefix string `yaml:"lambda_prefix"`
	// CodeDir is the directory holding the built lambda (bootstrap binary and parameters.yaml)
	CodeDir string `yaml:"code_dir"`
	// DeployDir is the staging directory the lambda package is assembled in
	DeployDir string `yaml:"deploy_dir"`
	// Email is subscribed to the stack's notification topic if set
	Email string `yaml:"email"`
	// Customizations is the path to the customizations file
	Customizations string `yaml:"customizations"`
}

// Lambda contains the settings the launcher lambda runs with
type Lambda struct {
	Region string `yaml:"region"`
	// AMI is an image id or LatestAMI
	AMI          string `yaml:"ami"`
	InstanceType string `yaml:"instance_type"`
	// SecurityGroup is a security group name, or a stack output key if StackName is set
	SecurityGroup string `yaml:"security_group"`
	// InstanceProfileName is an instance profile name, or a stack output key if StackName is set
	InstanceProfileName string `yaml:"instance_profile_name"`
	KeyPair             string `yaml:"keypair"`
	Spot                bool   `yaml:"spot"`
	StackName           string `yaml:"stackname"`
	// UserData is the template rendered into the instance user data
	UserData string `yaml:"user_data"`
	// FilterTestFolder replaces the folder from the event when set
	FilterTestFolder string        `yaml:"filter_testfolder"`
	Bucket           string        `yaml:"custom_s3bucket"`
	PushoverToken    string        `yaml:"custom_pushover_token"`
	PushoverKey      string        `yaml:"custom_pushover_key"`
	WaitTimeout      time.Duration `yaml:"wait_timeout"`
	PresignExpiry    time.Duration `yaml:"presign_expiry"`
}

// LoadDeploy reads deploy parameters from path and applies defaults
func LoadDeploy(path string) (*Deploy, error) {
	c := &Deploy{}
	if err := load(path, c); err != nil {
		return nil, err
	}
	if c.Customizations == "" {
		c.Customizations = DefaultCustomizationsFile
	}
	return c, nil
}

// Validate checks all required deploy fields are set
func (c *Deploy) Validate() error {
	required := map[string]string{
		"region":                  c.Region,
		"stackname":               c.StackName,
		"cloudformation_template": c.CloudFormationTemplate,
	}
	if c.LambdaBucket != "" {
		required["code_dir"] = c.CodeDir
		required["deploy_dir"] = c.DeployDir
	}
	return checkRequired(required)
}

// LoadLambda reads lambda parameters from path and applies defaults
func LoadLambda(path string) (*Lambda, error) {
	c := &Lambda{}
	if err := load(path, c); err != nil {
		return nil, err
	}
	if c.WaitTimeout == 0 {
		c.WaitTimeout = DefaultWaitTimeout
	}
	if c.PresignExpiry == 0 || c.PresignExpiry > MaxPresignExpiry {
		c.PresignExpiry = MaxPresignExpiry
	}
	return c, nil
}

// Validate checks all required lambda fields are set. An instance type outside the supported
// family catalog is allowed but logged.
func (c *Lambda) Validate() error {
	if c.InstanceType != "" && instances.Supported.GetInstanceTypeDetails(c.InstanceType) == nil {
		log.Warnf("instance type %v is not in the supported families: %v", c.InstanceType,
			instances.Supported.GetSupportedFamiliesOutput())
	}
	durations := map[string]time.Duration{
		"presign_expiry": c.PresignExpiry,
		"wait_timeout":   c.WaitTimeout,
	}
	for _, name := range []string{"presign_expiry", "wait_timeout"} {
		if durations[name] < MinDuration {
			return fmt.Errorf("%v '%v': %w", name, durations[name], ErrDurationTooShort)
		}
	}
	return checkRequired(map[string]string{
		"region":                c.Region,
		"ami":                   c.AMI,
		"instance_type":         c.InstanceType,
		"security_group":        c.SecurityGroup,
		"instance_profile_name": c.InstanceProfileName,
		"user_data":             c.UserData,
		"custom_s3bucket":       c.Bucket,
	})
}

func load(path string, out interface{}) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %v: %w", path, err)
	}
	if err := yaml.Unmarshal(b, out); err != nil {
		return fmt.Errorf("failed to parse config file %v: %w", path, err)
	}
	return nil
}

func checkRequired(fields map[string]string) error {
	var missing []string
	for _, name := range sortedKeys(fields) {
		if fields[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%v: %w", missing, ErrMissingField)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	var keys []string
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
