package cloudaws

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewestImage(t *testing.T) {
	older := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(24 * time.Hour)

	tests := map[string]struct {
		images      []Image
		expected    *Image
		expectedErr error
	}{
		"single image is newest": {
			images:   []Image{{ID: "ami-1", CreationDate: older}},
			expected: &Image{ID: "ami-1", CreationDate: older},
		},
		"newest image wins regardless of order": {
			images: []Image{
				{ID: "ami-1", CreationDate: older},
				{ID: "ami-2", CreationDate: newer},
				{ID: "ami-3", CreationDate: older.Add(time.Hour)},
			},
			expected: &Image{ID: "ami-2", CreationDate: newer},
		},
		"tie keeps first image": {
			images: []Image{
				{ID: "ami-1", CreationDate: newer},
				{ID: "ami-2", CreationDate: newer},
			},
			expected: &Image{ID: "ami-1", CreationDate: newer},
		},
		"no images returns error": {
			images:      nil,
			expectedErr: ErrNoImages,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			image, err := NewestImage(tc.images)
			assert.ErrorIs(t, err, tc.expectedErr)
			assert.Equal(t, tc.expected, image)
		})
	}
}

type fakeImageAPI struct {
	input  *ec2.DescribeImagesInput
	output *ec2.DescribeImagesOutput
}

func (f *fakeImageAPI) DescribeImages(ctx context.Context, params *ec2.DescribeImagesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error) {
	f.input = params
	return f.output, nil
}

func TestImageClient_Newest(t *testing.T) {
	api := &fakeImageAPI{output: &ec2.DescribeImagesOutput{Images: []ec2types.Image{
		{ImageId: aws.String("ami-old"), Name: aws.String("amzn2-ami-hvm-2.0.2020"), CreationDate: aws.String("2020-06-01T20:15:30.000Z")},
		{ImageId: aws.String("ami-new"), Name: aws.String("amzn2-ami-hvm-2.0.2021"), CreationDate: aws.String("2021-03-01T20:15:30.000Z")},
		{ImageId: aws.String("ami-bad"), CreationDate: aws.String("yesterday")},
	}}}
	client := &ImageClient{ec2Client: api}

	image, err := client.Newest(context.Background(), DefaultImageFilters("x86_64"))
	require.NoError(t, err)
	assert.Equal(t, "ami-new", image.ID)
	assert.Equal(t, []string{amazonOwnerAlias}, api.input.Owners)
	assert.Len(t, api.input.Filters, 9)
}
