package spotprice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errThrottled = errors.New("throttled")

type fakeHistoryAPI struct {
	pages    []*ec2.DescribeSpotPriceHistoryOutput
	failures int
	inputs   []ec2.DescribeSpotPriceHistoryInput
	calls    int
}

func (f *fakeHistoryAPI) DescribeSpotPriceHistory(ctx context.Context, params *ec2.DescribeSpotPriceHistoryInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSpotPriceHistoryOutput, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errThrottled
	}
	f.inputs = append(f.inputs, *params)
	page := 0
	if params.NextToken != nil {
		page = len(f.inputs) - 1
	}
	return f.pages[page], nil
}

func spotPrice(ts time.Time, price string) ec2types.SpotPrice {
	return ec2types.SpotPrice{
		Timestamp:        aws.Time(ts),
		SpotPrice:        aws.String(price),
		AvailabilityZone: aws.String("us-east-1a"),
		InstanceType:     ec2types.InstanceTypeC5dLarge,
	}
}

var testQuery = Query{
	Region:           "us-east-1",
	InstanceType:     "c5d.large",
	AvailabilityZone: "us-east-1a",
	Window:           Window{Start: windowStart, End: windowStart.Add(2 * time.Hour)},
}

func TestHistoryFetcher_Fetch(t *testing.T) {
	tests := map[string]struct {
		api         *fakeHistoryAPI
		query       Query
		expected    []PriceEvent
		expectedErr error
		calls       int
	}{
		"single page": {
			api: &fakeHistoryAPI{pages: []*ec2.DescribeSpotPriceHistoryOutput{
				{SpotPriceHistory: []ec2types.SpotPrice{
					spotPrice(windowStart.Add(time.Hour), "0.0400"),
					spotPrice(windowStart, "0.0350"),
				}},
			}},
			query: testQuery,
			expected: []PriceEvent{
				{Timestamp: windowStart.Add(time.Hour), Price: 0.04},
				{Timestamp: windowStart, Price: 0.035},
			},
			calls: 1,
		},
		"all pages are followed": {
			api: &fakeHistoryAPI{pages: []*ec2.DescribeSpotPriceHistoryOutput{
				{
					SpotPriceHistory: []ec2types.SpotPrice{spotPrice(windowStart.Add(time.Hour), "0.0400")},
					NextToken:        aws.String("next"),
				},
				{
					SpotPriceHistory: []ec2types.SpotPrice{spotPrice(windowStart, "0.0350")},
					NextToken:        aws.String(""),
				},
			}},
			query: testQuery,
			expected: []PriceEvent{
				{Timestamp: windowStart.Add(time.Hour), Price: 0.04},
				{Timestamp: windowStart, Price: 0.035},
			},
			calls: 2,
		},
		"throttled call is retried": {
			api: &fakeHistoryAPI{failures: 1, pages: []*ec2.DescribeSpotPriceHistoryOutput{
				{SpotPriceHistory: []ec2types.SpotPrice{spotPrice(windowStart, "0.0350")}},
			}},
			query:    testQuery,
			expected: []PriceEvent{{Timestamp: windowStart, Price: 0.035}},
			calls:    2,
		},
		"persistent failure is returned": {
			api:         &fakeHistoryAPI{failures: DefaultFetchAttempts},
			query:       testQuery,
			expectedErr: errThrottled,
			calls:       DefaultFetchAttempts,
		},
		"malformed price fails at ingestion": {
			api: &fakeHistoryAPI{pages: []*ec2.DescribeSpotPriceHistoryOutput{
				{SpotPriceHistory: []ec2types.SpotPrice{spotPrice(windowStart, "cheap")}},
			}},
			query:       testQuery,
			expectedErr: ErrMalformedPrice,
			calls:       1,
		},
		"invalid window is rejected before any call": {
			api:         &fakeHistoryAPI{},
			query:       Query{InstanceType: "c5d.large", AvailabilityZone: "us-east-1a", Window: Window{Start: windowStart, End: windowStart}},
			expectedErr: ErrInvalidWindow,
			calls:       0,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			fetcher := NewHistoryFetcher(tc.api)
			fetcher.delay = time.Millisecond

			events, err := fetcher.Fetch(context.Background(), tc.query)
			assert.ErrorIs(t, err, tc.expectedErr)
			assert.Equal(t, tc.expected, events)
			assert.Equal(t, tc.calls, tc.api.calls)
		})
	}
}

func TestHistoryFetcher_FetchInput(t *testing.T) {
	api := &fakeHistoryAPI{pages: []*ec2.DescribeSpotPriceHistoryOutput{{}}}

	_, err := NewHistoryFetcher(api).Fetch(context.Background(), testQuery)
	require.NoError(t, err)
	require.Len(t, api.inputs, 1)

	input := api.inputs[0]
	assert.Equal(t, []ec2types.InstanceType{"c5d.large"}, input.InstanceTypes)
	assert.Equal(t, "us-east-1a", aws.ToString(input.AvailabilityZone))
	assert.Equal(t, []string{DefaultProductDescription}, input.ProductDescriptions)
	assert.Equal(t, testQuery.Window.Start, aws.ToTime(input.StartTime))
	assert.Equal(t, testQuery.Window.End, aws.ToTime(input.EndTime))
}

func TestParsePrice(t *testing.T) {
	tests := map[string]struct {
		input       string
		expected    float64
		expectedErr error
	}{
		"decimal string":     {input: "0.039100", expected: 0.0391},
		"integer string":     {input: "1", expected: 1},
		"empty string":       {input: "", expectedErr: ErrMalformedPrice},
		"non numeric string": {input: "n/a", expectedErr: ErrMalformedPrice},
		"negative price":     {input: "-0.5", expectedErr: ErrMalformedPrice},
		"not a number":       {input: "NaN", expectedErr: ErrMalformedPrice},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			price, err := ParsePrice(tc.input)
			assert.ErrorIs(t, err, tc.expectedErr)
			assert.Equal(t, tc.expected, price)
		})
	}
}

func TestEventFromSpotPrice_MissingTimestamp(t *testing.T) {
	_, err := EventFromSpotPrice(ec2types.SpotPrice{SpotPrice: aws.String("0.1")})
	assert.ErrorIs(t, err, ErrMalformedPrice)
}
