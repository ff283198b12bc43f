package cloudaws

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	log "github.com/sirupsen/logrus"
)

const (
	amazonOwnerAlias = "amazon"
	amazonOwnerID    = "137112412989"
)

var (
	// ErrNoImages is returned if no image matches the filters
	ErrNoImages = errors.New("no images match filters")
)

// Image is the subset of image details used to pick an AMI
type Image struct {
	ID           string
	Name         string
	Description  string
	CreationDate time.Time
}

// ImageAPI is the subset of the EC2 API used to find images
type ImageAPI interface {
	DescribeImages(ctx context.Context, params *ec2.DescribeImagesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error)
}

// DefaultImageFilters matches available Amazon Linux 2 HVM EBS machine images for an architecture
func DefaultImageFilters(arch string) []ec2types.Filter {
	filter := func(name, value string) ec2types.Filter {
		return ec2types.Filter{Name: aws.String(name), Values: []string{value}}
	}
	return []ec2types.Filter{
		filter("name", "amzn2-ami-hvm-*"),
		filter("description", "Amazon Linux 2 AMI*"),
		filter("architecture", arch),
		filter("owner-alias", amazonOwnerAlias),
		filter("owner-id", amazonOwnerID),
		filter("state", "available"),
		filter("root-device-type", "ebs"),
		filter("virtualization-type", "hvm"),
		filter("image-type", "machine"),
	}
}

// ImageClient finds machine images
type ImageClient struct {
	ec2Client ImageAPI
}

// NewImageClient returns an initialized ImageClient
func NewImageClient(ctx context.Context, region string) (*ImageClient, error) {
	cfg, err := LoadConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	return &ImageClient{ec2Client: ec2.NewFromConfig(cfg)}, nil
}

// Newest returns the most recently created amazon owned image matching filters
func (c *ImageClient) Newest(ctx context.Context, filters []ec2types.Filter) (*Image, error) {
	output, err := c.ec2Client.DescribeImages(ctx, &ec2.DescribeImagesInput{
		Owners:  []string{amazonOwnerAlias},
		Filters: filters,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe images: %w", err)
	}

	images := make([]Image, 0, len(output.Images))
	for _, image := range output.Images {
		created, err := time.Parse(time.RFC3339, aws.ToString(image.CreationDate))
		if err != nil {
			log.Warnf("skipping image %v with unparseable creation date %q", aws.ToString(image.ImageId), aws.ToString(image.CreationDate))
			continue
		}
		images = append(images, Image{
			ID:           aws.ToString(image.ImageId),
			Name:         aws.ToString(image.Name),
			Description:  aws.ToString(image.Description),
			CreationDate: created,
		})
	}

	newest, err := NewestImage(images)
	if err != nil {
		return nil, err
	}
	log.Infof("newest image is %v (%v) created %v", newest.ID, newest.Name, newest.CreationDate)
	return newest, nil
}

// NewestImage returns the image with the latest creation date. Ties keep the first image.
func NewestImage(images []Image) (*Image, error) {
	if len(images) == 0 {
		return nil, ErrNoImages
	}
	latest := images[0]
	for _, image := range images[1:] {
		if image.CreationDate.After(latest.CreationDate) {
			latest = image
		}
	}
	return &latest, nil
}
