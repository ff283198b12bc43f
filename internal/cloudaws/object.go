package cloudaws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	log "github.com/sirupsen/logrus"
)

// ObjectAPI is the subset of the S3 API used to inspect objects
type ObjectAPI interface {
	s3.ListObjectsV2APIClient
}

// PresignAPI presigns object downloads
type PresignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*PresignedRequest, error)
}

// PresignedRequest is a presigned http request
type PresignedRequest struct {
	URL string
}

type s3Presigner struct {
	client *s3.PresignClient
}

func (p *s3Presigner) PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*PresignedRequest, error) {
	request, err := p.client.PresignGetObject(ctx, params, optFns...)
	if err != nil {
		return nil, err
	}
	return &PresignedRequest{URL: request.URL}, nil
}

// ObjectClient lists and shares objects in a bucket
type ObjectClient struct {
	s3Client  ObjectAPI
	presigner PresignAPI
}

// NewObjectClient returns an initialized ObjectClient
func NewObjectClient(ctx context.Context, region string) (*ObjectClient, error) {
	cfg, err := LoadConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	s3Client := s3.NewFromConfig(cfg)
	return &ObjectClient{
		s3Client:  s3Client,
		presigner: &s3Presigner{client: s3.NewPresignClient(s3Client)},
	}, nil
}

// PrefixExists returns whether any object in bucket starts with prefix
func (c *ObjectClient) PrefixExists(ctx context.Context, bucket, prefix string) (bool, error) {
	output, err := c.s3Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, fmt.Errorf("failed to list %v in bucket %v: %w", prefix, bucket, err)
	}
	exists := len(output.Contents) > 0
	if exists {
		log.Infof("prefix %v exists in bucket %v", prefix, bucket)
	} else {
		log.Infof("prefix %v not in bucket %v", prefix, bucket)
	}
	return exists, nil
}

// ListKeys returns all keys in bucket starting with prefix
func (c *ObjectClient) ListKeys(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	pages := s3.NewListObjectsV2Paginator(c.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %v in bucket %v: %w", prefix, bucket, err)
		}
		for _, object := range page.Contents {
			keys = append(keys, aws.ToString(object.Key))
		}
	}
	return keys, nil
}

// PresignGet returns a url that downloads key for the given duration
func (c *ObjectClient) PresignGet(ctx context.Context, bucket, key string, expires time.Duration) (string, error) {
	request, err := c.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", fmt.Errorf("failed to presign %v/%v: %w", bucket, key, err)
	}
	return request.URL, nil
}
