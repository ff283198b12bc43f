package cloudaws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// NewEC2Client returns an EC2 client for a region
func NewEC2Client(ctx context.Context, region string) (*ec2.Client, error) {
	cfg, err := LoadConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	return ec2.NewFromConfig(cfg), nil
}

// TerminateEC2Instance terminates an instance in the given region
func TerminateEC2Instance(ctx context.Context, instanceID, region string) (*ec2.TerminateInstancesOutput, error) {
	cfg, err := LoadConfig(ctx, region)
	if err != nil {
		return nil, err
	}

	ec2Client := ec2.NewFromConfig(cfg)
	output, err := ec2Client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to terminate ec2 instance '%v' in region '%v': output:%v error:%w", instanceID, region, output, err)
	}

	return output, nil
}

// GetRunningEC2InstancesWithProfileName lists the running instances launched with an instance profile
// across a comma separated list of regions
func GetRunningEC2InstancesWithProfileName(ctx context.Context, profileName, listRegions string) ([]string, error) {
	instances := []string{}
	for _, region := range strings.Split(listRegions, ",") {
		cfg, err := LoadConfig(ctx, region)
		if err != nil {
			return nil, err
		}

		pages := ec2.NewDescribeInstancesPaginator(ec2.NewFromConfig(cfg), &ec2.DescribeInstancesInput{
			Filters: []ec2types.Filter{
				{
					Name:   aws.String("instance-state-name"),
					Values: []string{"running"},
				},
			},
		})
		for pages.HasMorePages() {
			resp, err := pages.NextPage(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to describe ec2 instances in region %v: %w", region, err)
			}
			instances = append(instances, instancesWithProfileName(resp.Reservations, profileName, region)...)
		}
	}
	return instances, nil
}

func instancesWithProfileName(reservations []ec2types.Reservation, profileName, region string) []string {
	var instances []string
	for _, reservation := range reservations {
		for _, instance := range reservation.Instances {
			if instance.IamInstanceProfile == nil || instance.IamInstanceProfile.Arn == nil {
				continue
			}

			arn := aws.ToString(instance.IamInstanceProfile.Arn)
			instanceIamProfileName := arn[strings.LastIndex(arn, "/")+1:]
			if instanceIamProfileName == profileName {
				instances = append(instances, fmt.Sprintf("instance='%v' ip='%v' region='%v' launched='%v'",
					aws.ToString(instance.InstanceId), aws.ToString(instance.PublicIpAddress), region, aws.ToTime(instance.LaunchTime)))
			}
		}
	}
	return instances
}
