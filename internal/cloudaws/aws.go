package cloudaws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

const (
	defaultAccessCheckTimeout = time.Second * 10
)

// LoadConfig loads the default aws config (environment, shared config, instance role) for a region
func LoadConfig(ctx context.Context, region string) (aws.Config, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load default aws config: %w", err)
	}
	return cfg, nil
}

// Identity is the account and principal the loaded credentials belong to
type Identity struct {
	Account string
	Arn     string
}

// CallerIdentity returns the account and arn of the current credentials
func CallerIdentity(ctx context.Context, cfg aws.Config) (*Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultAccessCheckTimeout)
	defer cancel()

	output, err := sts.NewFromConfig(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("unable to get caller identity - make sure you have valid AWS credentials: %w", err)
	}
	return &Identity{
		Account: aws.ToString(output.Account),
		Arn:     aws.ToString(output.Arn),
	}, nil
}
