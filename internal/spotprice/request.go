package spotprice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// legacyTimeLayout is the layout the original price script accepted (microseconds, numeric offset)
const legacyTimeLayout = "2006-01-02T15:04:05.999999-0700"

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	legacyTimeLayout,
	"2006-01-02T15:04:05-0700",
}

// ErrSpotRequestNotFound is returned if a spot request id does not resolve to exactly one request
var ErrSpotRequestNotFound = errors.New("spot instance request not found")

// ParseTime parses a timezone aware timestamp and returns it in UTC
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse %q as a timezone aware timestamp (e.g. 2020-02-11T18:32:08Z)", s)
}

// QueryFromSpotRequest derives the instance type, zone and window a spot request ran over. Requests
// that are still open or active are priced up to now, or up to their expiry if that came first.
func QueryFromSpotRequest(request ec2types.SpotInstanceRequest, now time.Time) (Query, error) {
	id := aws.ToString(request.SpotInstanceRequestId)
	if request.CreateTime == nil {
		return Query{}, fmt.Errorf("spot request %v has no create time", id)
	}
	if request.LaunchSpecification == nil {
		return Query{}, fmt.Errorf("spot request %v has no launch specification", id)
	}

	zone := aws.ToString(request.LaunchedAvailabilityZone)
	if zone == "" && request.LaunchSpecification.Placement != nil {
		zone = aws.ToString(request.LaunchSpecification.Placement.AvailabilityZone)
	}
	if zone == "" {
		return Query{}, fmt.Errorf("spot request %v has no availability zone", id)
	}

	var stop time.Time
	switch request.State {
	case ec2types.SpotInstanceStateClosed, ec2types.SpotInstanceStateCancelled, ec2types.SpotInstanceStateFailed:
		if request.Status == nil || request.Status.UpdateTime == nil {
			return Query{}, fmt.Errorf("spot request %v is %v but has no status update time", id, request.State)
		}
		stop = *request.Status.UpdateTime
	default:
		stop = now
		if request.ValidUntil != nil && request.ValidUntil.Before(stop) {
			stop = *request.ValidUntil
		}
	}

	return Query{
		InstanceType:     string(request.LaunchSpecification.InstanceType),
		AvailabilityZone: zone,
		Window: Window{
			Start: request.CreateTime.UTC(),
			End:   stop.UTC(),
		},
	}, nil
}

// RequestAPI is the subset of the EC2 API used to look up spot requests
type RequestAPI interface {
	DescribeSpotInstanceRequests(ctx context.Context, params *ec2.DescribeSpotInstanceRequestsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSpotInstanceRequestsOutput, error)
}

// ResolveSpotRequest looks up a spot request by id and derives its Query
func ResolveSpotRequest(ctx context.Context, api RequestAPI, requestID string, now time.Time) (Query, error) {
	output, err := api.DescribeSpotInstanceRequests(ctx, &ec2.DescribeSpotInstanceRequestsInput{
		SpotInstanceRequestIds: []string{requestID},
	})
	if err != nil {
		return Query{}, fmt.Errorf("failed to describe spot request %v: %w", requestID, err)
	}
	if len(output.SpotInstanceRequests) != 1 {
		return Query{}, fmt.Errorf("%v: %w", requestID, ErrSpotRequestNotFound)
	}
	return QueryFromSpotRequest(output.SpotInstanceRequests[0], now)
}
