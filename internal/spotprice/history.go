package spotprice

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/avast/retry-go"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultProductDescription is the platform spot prices are looked up for
	DefaultProductDescription = "Linux/UNIX"
	// DefaultFetchAttempts is how many times a single history page request is tried
	DefaultFetchAttempts = 3
)

// Query identifies the spot price history and window to price
type Query struct {
	Region             string
	InstanceType       string
	AvailabilityZone   string
	ProductDescription string
	Window             Window
}

// Validate checks that the query is complete
func (q Query) Validate() error {
	if q.InstanceType == "" {
		return fmt.Errorf("instance type is required")
	}
	if q.AvailabilityZone == "" {
		return fmt.Errorf("availability zone is required")
	}
	return q.Window.Validate()
}

// HistoryAPI is the subset of the EC2 API used to read spot price history
type HistoryAPI interface {
	DescribeSpotPriceHistory(ctx context.Context, params *ec2.DescribeSpotPriceHistoryInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSpotPriceHistoryOutput, error)
}

// HistoryFetcher reads spot price history and converts it to PriceEvents
type HistoryFetcher struct {
	api      HistoryAPI
	attempts uint
	delay    time.Duration
}

// NewHistoryFetcher returns an initialized HistoryFetcher
func NewHistoryFetcher(api HistoryAPI) *HistoryFetcher {
	return &HistoryFetcher{
		api:      api,
		attempts: DefaultFetchAttempts,
		delay:    time.Second,
	}
}

// Fetch returns every price event for the query, following all pages
func (f *HistoryFetcher) Fetch(ctx context.Context, q Query) ([]PriceEvent, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	productDescription := q.ProductDescription
	if productDescription == "" {
		productDescription = DefaultProductDescription
	}

	input := &ec2.DescribeSpotPriceHistoryInput{
		InstanceTypes:       []ec2types.InstanceType{ec2types.InstanceType(q.InstanceType)},
		AvailabilityZone:    aws.String(q.AvailabilityZone),
		ProductDescriptions: []string{productDescription},
		StartTime:           aws.Time(q.Window.Start),
		EndTime:             aws.Time(q.Window.End),
	}

	var events []PriceEvent
	for page := 1; ; page++ {
		var output *ec2.DescribeSpotPriceHistoryOutput
		err := retry.Do(
			func() error {
				var err error
				output, err = f.api.DescribeSpotPriceHistory(ctx, input)
				return err
			},
			retry.Context(ctx),
			retry.Attempts(f.attempts),
			retry.Delay(f.delay),
			retry.LastErrorOnly(true),
			retry.OnRetry(func(n uint, err error) {
				log.Warnf("retrying spot price history page %d (attempt %d): %v", page, n+1, err)
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to describe spot price history for %v in %v: %w", q.InstanceType, q.AvailabilityZone, err)
		}

		for _, record := range output.SpotPriceHistory {
			event, err := EventFromSpotPrice(record)
			if err != nil {
				return nil, err
			}
			events = append(events, event)
		}

		if output.NextToken == nil || *output.NextToken == "" {
			break
		}
		input.NextToken = output.NextToken
	}

	log.Debugf("fetched %d spot price events for %v in %v", len(events), q.InstanceType, q.AvailabilityZone)
	return events, nil
}

// EventFromSpotPrice converts an EC2 spot price record to a PriceEvent
func EventFromSpotPrice(record ec2types.SpotPrice) (PriceEvent, error) {
	if record.Timestamp == nil {
		return PriceEvent{}, fmt.Errorf("record has no timestamp: %w", ErrMalformedPrice)
	}
	price, err := ParsePrice(aws.ToString(record.SpotPrice))
	if err != nil {
		return PriceEvent{}, err
	}
	return PriceEvent{
		Timestamp: record.Timestamp.UTC(),
		Price:     price,
	}, nil
}

// ParsePrice parses a USD per hour price string
func ParsePrice(s string) (float64, error) {
	price, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%q: %v: %w", s, err, ErrMalformedPrice)
	}
	if price < 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("%q: %w", s, ErrMalformedPrice)
	}
	return price, nil
}
