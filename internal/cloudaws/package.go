package cloudaws

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
)

// UploadAPI is the subset of the S3 API used to upload packaged artifacts
type UploadAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// PackageClient uploads content addressed artifacts (lambda zips, large templates) to S3
type PackageClient struct {
	s3Client UploadAPI
	region   string
}

// NewPackageClient returns an initialized PackageClient
func NewPackageClient(ctx context.Context, region string) (*PackageClient, error) {
	cfg, err := LoadConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	return &PackageClient{s3Client: s3.NewFromConfig(cfg), region: region}, nil
}

// Upload uploads file to bucket under prefix/<md5 of contents><extension> and returns the key. A
// file whose key already exists is not uploaded again.
func (c *PackageClient) Upload(ctx context.Context, bucket, prefix, file string) (string, error) {
	contents, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("failed to read %v: %w", file, err)
	}
	sum := md5.Sum(contents)
	key := path.Join(prefix, hex.EncodeToString(sum[:])+filepath.Ext(file))

	_, err = c.s3Client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err == nil {
		log.Infof("s3://%v/%v already exists, skipping upload", bucket, key)
		return key, nil
	}
	var notFound *s3types.NotFound
	if !errors.As(err, &notFound) {
		return "", fmt.Errorf("unknown S3 error checking s3://%v/%v: %w", bucket, key, err)
	}

	_, err = c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(contents),
		ContentLength:        aws.Int64(int64(len(contents))),
		ACL:                  s3types.ObjectCannedACLPrivate,
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %v to s3://%v/%v: %w", file, bucket, key, err)
	}
	log.Infof("uploaded %v (%v) to s3://%v/%v", file, humanize.Bytes(uint64(len(contents))), bucket, key)
	return key, nil
}

// URL returns the https url of key, the form CloudFormation expects for TemplateURL
func (c *PackageClient) URL(bucket, key string) string {
	if c.region == DefaultRegion {
		return fmt.Sprintf("https://%v.s3.amazonaws.com/%v", bucket, key)
	}
	return fmt.Sprintf("https://%v.s3.%v.amazonaws.com/%v", bucket, c.region, key)
}
