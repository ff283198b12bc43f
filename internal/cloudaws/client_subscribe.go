package cloudaws

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

var (
	// ErrTopicNotFound is returned if no sns topic matches the requested name
	ErrTopicNotFound = errors.New("unable to find sns topic")
)

// TopicAPI is the subset of the SNS API used to subscribe to a topic
type TopicAPI interface {
	sns.ListTopicsAPIClient
	sns.ListSubscriptionsByTopicAPIClient
	Subscribe(ctx context.Context, params *sns.SubscribeInput, optFns ...func(*sns.Options)) (*sns.SubscribeOutput, error)
}

// SubscribeClient is a client that allows subscription to SNS topic
type SubscribeClient struct {
	snsClient TopicAPI
}

// NewSubscribeClient provides an initialized SubscribeClient
func NewSubscribeClient(ctx context.Context, region string) (*SubscribeClient, error) {
	cfg, err := LoadConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	return &SubscribeClient{snsClient: sns.NewFromConfig(cfg)}, nil
}

// Subscribe looks for a topic with name and subscribes email. If subscribe happens, returns true, otherwise false.
func (c *SubscribeClient) Subscribe(ctx context.Context, name, email string) (bool, error) {
	topicArn, err := c.findTopic(ctx, name)
	if err != nil {
		return false, err
	}

	subscriptions := sns.NewListSubscriptionsByTopicPaginator(c.snsClient, &sns.ListSubscriptionsByTopicInput{
		TopicArn: aws.String(topicArn),
	})
	for subscriptions.HasMorePages() {
		page, err := subscriptions.NextPage(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to list SNS subscriptions for topic %v: %w", topicArn, err)
		}
		// if subscription already exists return
		for _, subscription := range page.Subscriptions {
			if aws.ToString(subscription.Endpoint) == email {
				return false, nil
			}
		}
	}

	// subscribe if not setup
	_, err = c.snsClient.Subscribe(ctx, &sns.SubscribeInput{
		Protocol: aws.String("email"),
		TopicArn: aws.String(topicArn),
		Endpoint: aws.String(email),
	})
	if err != nil {
		return false, fmt.Errorf("failed to setup email notifications: %w", err)
	}
	return true, nil
}

func (c *SubscribeClient) findTopic(ctx context.Context, name string) (string, error) {
	topics := sns.NewListTopicsPaginator(c.snsClient, &sns.ListTopicsInput{})
	for topics.HasMorePages() {
		page, err := topics.NextPage(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to list sns topics: %w", err)
		}
		for _, topic := range page.Topics {
			arn := aws.ToString(topic.TopicArn)
			if name == arn || name == topicName(arn) {
				return arn, nil
			}
		}
	}
	return "", fmt.Errorf("'%v': %w", name, ErrTopicNotFound)
}

// topicName returns the last segment of a topic arn (arn:aws:sns:region:account:name)
func topicName(arn string) string {
	parts := strings.Split(arn, ":")
	return parts[len(parts)-1]
}
