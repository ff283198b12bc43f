package cloudaws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errAccessDenied = errors.New("access denied")

type fakeBucketAPI struct {
	headErr     error
	location    s3types.BucketLocationConstraint
	createInput *s3.CreateBucketInput
	createErr   error
	listErr     error
}

func (f *fakeBucketAPI) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeBucketAPI) GetBucketLocation(ctx context.Context, params *s3.GetBucketLocationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error) {
	return &s3.GetBucketLocationOutput{LocationConstraint: f.location}, nil
}

func (f *fakeBucketAPI) CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.createInput = params
	return &s3.CreateBucketOutput{}, f.createErr
}

func (f *fakeBucketAPI) ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	return &s3.ListBucketsOutput{}, f.listErr
}

func TestSetupClient_BucketExistsInRegion(t *testing.T) {
	tests := map[string]struct {
		region      string
		api         *fakeBucketAPI
		expected    bool
		expectedErr error
	}{
		"bucket in region exists": {
			region:   "us-west-2",
			api:      &fakeBucketAPI{location: "us-west-2"},
			expected: true,
		},
		"empty location constraint is us-east-1": {
			region:   "us-east-1",
			api:      &fakeBucketAPI{location: ""},
			expected: true,
		},
		"bucket in another region returns error": {
			region:      "us-west-2",
			api:         &fakeBucketAPI{location: "eu-west-1"},
			expectedErr: ErrBucketInOtherRegion,
		},
		"missing bucket does not exist": {
			region:   "us-west-2",
			api:      &fakeBucketAPI{headErr: &s3types.NotFound{}},
			expected: false,
		},
		"unknown error is returned": {
			region:      "us-west-2",
			api:         &fakeBucketAPI{headErr: errAccessDenied},
			expectedErr: errAccessDenied,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			client := &SetupClient{s3Client: tc.api, region: tc.region}
			exists, err := client.BucketExistsInRegion(context.Background(), "bucket")
			assert.ErrorIs(t, err, tc.expectedErr)
			assert.Equal(t, tc.expected, exists)
		})
	}
}

func TestSetupClient_CreateBucket(t *testing.T) {
	tests := map[string]struct {
		region             string
		expectedConstraint *s3types.CreateBucketConfiguration
	}{
		"us-east-1 has no location constraint": {
			region: "us-east-1",
		},
		"other regions set location constraint": {
			region:             "us-west-2",
			expectedConstraint: &s3types.CreateBucketConfiguration{LocationConstraint: "us-west-2"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			api := &fakeBucketAPI{}
			client := &SetupClient{s3Client: api, region: tc.region}
			require.NoError(t, client.CreateBucket(context.Background(), "bucket"))
			assert.Equal(t, "bucket", aws.ToString(api.createInput.Bucket))
			assert.Equal(t, tc.expectedConstraint, api.createInput.CreateBucketConfiguration)
		})
	}
}

type fakeRoleAPI struct {
	err error
}

func (f *fakeRoleAPI) CreateServiceLinkedRole(ctx context.Context, params *iam.CreateServiceLinkedRoleInput, optFns ...func(*iam.Options)) (*iam.CreateServiceLinkedRoleOutput, error) {
	return &iam.CreateServiceLinkedRoleOutput{}, f.err
}

func TestSetupClient_ServiceLinkedRolesSetup(t *testing.T) {
	tests := map[string]struct {
		err         error
		expectedErr error
	}{
		"role is created":               {},
		"existing role is not an error": {err: &iamtypes.InvalidInputException{Message: aws.String("has been taken")}},
		"other errors are returned":     {err: errAccessDenied, expectedErr: errAccessDenied},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			client := &SetupClient{iamClient: &fakeRoleAPI{err: tc.err}}
			assert.ErrorIs(t, client.ServiceLinkedRolesSetup(context.Background()), tc.expectedErr)
		})
	}
}
