package cloudaws

const (
	// DefaultInstanceRegions is the default regions to search for running instances
	DefaultInstanceRegions = "us-west-2,us-west-1,us-east-2,us-east-1"
)

var (
	supportedRegions = map[string]Region{}
	regionSortOrder  []string
)

// Region contains details about an AWS region
type Region struct {
	// Name is the name of the region (e.g. us-west-2)
	Name string
	// Friendly is the location of the region
	Friendly string
}

func init() {
	addRegions(
		Region{"af-south-1", "Cape Town"},
		Region{"ap-east-1", "Hong Kong"},
		Region{"ap-northeast-1", "Tokyo"},
		Region{"ap-northeast-2", "Seoul"},
		Region{"ap-northeast-3", "Osaka"},
		Region{"ap-south-1", "Mumbai"},
		Region{"ap-southeast-1", "Singapore"},
		Region{"ap-southeast-2", "Sydney"},
		Region{"ca-central-1", "Canada Central"},
		Region{"eu-central-1", "Frankfurt"},
		Region{"eu-north-1", "Stockholm"},
		Region{"eu-south-1", "Milan"},
		Region{"eu-west-1", "Ireland"},
		Region{"eu-west-2", "London"},
		Region{"eu-west-3", "Paris"},
		Region{"me-south-1", "Bahrain"},
		Region{"sa-east-1", "Sao Paulo"},
		Region{"us-east-1", "N. Virginia"},
		Region{"us-east-2", "Ohio"},
		Region{"us-west-1", "N. California"},
		Region{"us-west-2", "Oregon"},
	)
}

// GetSupportedRegions returns a list of all supported regions
func GetSupportedRegions() []string {
	return regionSortOrder
}

// IsSupportedRegion returns whether a specified region is supported
func IsSupportedRegion(region string) bool {
	_, ok := supportedRegions[region]
	return ok
}

func addRegions(regions ...Region) {
	for _, region := range regions {
		supportedRegions[region.Name] = region
		regionSortOrder = append(regionSortOrder, region.Name)
	}
}
