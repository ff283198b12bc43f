package cloudaws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultRegion is the region S3 reports as an empty location constraint
	DefaultRegion = "us-east-1"
)

var (
	// ErrBucketInOtherRegion is returned if a bucket exists but lives in a different region
	ErrBucketInOtherRegion = errors.New("bucket exists in a different region")
)

// BucketAPI is the subset of the S3 API used to check and create buckets
type BucketAPI interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	GetBucketLocation(ctx context.Context, params *s3.GetBucketLocationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
}

// RoleAPI is the subset of the IAM API used to create service linked roles
type RoleAPI interface {
	CreateServiceLinkedRole(ctx context.Context, params *iam.CreateServiceLinkedRoleInput, optFns ...func(*iam.Options)) (*iam.CreateServiceLinkedRoleOutput, error)
}

// SetupClient provides the account setup the stack depends on but does not own
type SetupClient struct {
	s3Client  BucketAPI
	iamClient RoleAPI
	region    string
}

// NewSetupClient returns an initialized SetupClient
func NewSetupClient(ctx context.Context, region string) (*SetupClient, error) {
	cfg, err := LoadConfig(ctx, region)
	if err != nil {
		return nil, err
	}

	c := &SetupClient{
		s3Client:  s3.NewFromConfig(cfg),
		iamClient: iam.NewFromConfig(cfg),
		region:    region,
	}
	if err := c.checkS3Access(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// BucketExistsInRegion returns true if the bucket exists and is located in the client's region. A
// bucket that exists elsewhere returns ErrBucketInOtherRegion.
func (c *SetupClient) BucketExistsInRegion(ctx context.Context, bucket string) (bool, error) {
	_, err := c.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		var notFound *s3types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("unknown S3 error checking bucket %v: %w", bucket, err)
	}

	output, err := c.s3Client.GetBucketLocation(ctx, &s3.GetBucketLocationInput{Bucket: aws.String(bucket)})
	if err != nil {
		return false, fmt.Errorf("failed to get location of bucket %v: %w", bucket, err)
	}
	location := string(output.LocationConstraint)
	if location == "" {
		location = DefaultRegion
	}
	if location != c.region {
		return false, fmt.Errorf("bucket %v is in %v, not %v: %w", bucket, location, c.region, ErrBucketInOtherRegion)
	}
	return true, nil
}

// CreateBucket creates a bucket in the client's region
func (c *SetupClient) CreateBucket(ctx context.Context, bucket string) error {
	bucketInput := &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	}
	if c.region != DefaultRegion {
		bucketInput.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(c.region),
		}
	}

	output, err := c.s3Client.CreateBucket(ctx, bucketInput)
	if err != nil {
		return fmt.Errorf("failed to create bucket %v - note that this bucket name must be globally unique: output:%v err:%w", bucket, output, err)
	}
	log.Infof("created bucket %v in %v", bucket, c.region)
	return nil
}

// ServiceLinkedRolesSetup creates the spot service linked role needed to request spot instances. A
// role that already exists is not an error.
func (c *SetupClient) ServiceLinkedRolesSetup(ctx context.Context) error {
	_, err := c.iamClient.CreateServiceLinkedRole(ctx, &iam.CreateServiceLinkedRoleInput{
		AWSServiceName: aws.String("spot.amazonaws.com"),
	})
	if err != nil {
		var invalidInputException *iamtypes.InvalidInputException
		if errors.As(err, &invalidInputException) {
			log.Debugf("spot.amazonaws.com service linked role already exists: %v", invalidInputException.ErrorMessage())
			return nil
		}
		return fmt.Errorf("failed to create spot.amazonaws.com service linked role: %w", err)
	}
	log.Info("created spot.amazonaws.com service linked role")
	return nil
}

func (c *SetupClient) checkS3Access(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultAccessCheckTimeout)
	defer cancel()

	_, err := c.s3Client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return fmt.Errorf("unable to list S3 buckets - make sure you have valid admin AWS credentials: %w", err)
	}
	return nil
}
