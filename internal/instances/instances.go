package instances

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// ArchX86 is the x86_64 architecture as reported by EC2 image filters
	ArchX86 = "x86_64"
	// ArchARM is the arm64 architecture as reported by EC2 image filters
	ArchARM = "arm64"
)

var (
	// ErrMissingName is returned if family is missing name
	ErrMissingName = errors.New("supported family is missing required name")
	// ErrMissingFriendly is returned if friendly description for family is missing
	ErrMissingFriendly = errors.New("supported family is missing required friendly description")
	// ErrMissingArch is returned if architecture for family is missing
	ErrMissingArch = errors.New("supported family is missing required architecture")
	// ErrInvalidInstanceType is returned if an instance type is not of the form family.size
	ErrInvalidInstanceType = errors.New("instance type must be of the form family.size (e.g. c5d.large)")
)

// Family contains details and metadata about an EC2 instance family
type Family struct {
	Name          string
	Friendly      string
	Arch          string
	InstanceStore bool
}

// SupportedFamilies contains all the supported instance families, their details, and sort order
type SupportedFamilies struct {
	supportedFamilies map[string]*Family
	familySortOrder   []string
}

// NewSupportedFamilies takes in all families, validates them, and returns initialized SupportedFamilies
// which contains helper functions to get details about the supported families
func NewSupportedFamilies(families ...*Family) (*SupportedFamilies, error) {
	var familySortOrder []string
	supportedFamilies := map[string]*Family{}
	for _, family := range families {
		if family.Name == "" {
			return nil, ErrMissingName
		}
		if family.Friendly == "" {
			return nil, fmt.Errorf("'%v': %w", family.Name, ErrMissingFriendly)
		}
		if family.Arch == "" {
			return nil, fmt.Errorf("'%v': %w", family.Name, ErrMissingArch)
		}
		familySortOrder = append(familySortOrder, family.Name)
		supportedFamilies[family.Name] = family
	}

	return &SupportedFamilies{
		supportedFamilies: supportedFamilies,
		familySortOrder:   familySortOrder,
	}, nil
}

// FamilyOf takes an instance type (e.g. c5d.large) and returns its family (e.g. c5d)
func FamilyOf(instanceType string) (string, error) {
	parts := strings.Split(instanceType, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("'%v': %w", instanceType, ErrInvalidInstanceType)
	}
	return parts[0], nil
}

// IsSupportedFamily takes family name (e.g. c5d) and returns boolean support value
func (s *SupportedFamilies) IsSupportedFamily(family string) bool {
	_, ok := s.supportedFamilies[family]
	return ok
}

// GetFamilyDetails takes family name (e.g. c5d) and returns full Family details
func (s *SupportedFamilies) GetFamilyDetails(family string) *Family {
	return s.supportedFamilies[family]
}

// GetInstanceTypeDetails takes an instance type (e.g. c5d.large) and returns details of its family,
// or nil if the family is not supported
func (s *SupportedFamilies) GetInstanceTypeDetails(instanceType string) *Family {
	family, err := FamilyOf(instanceType)
	if err != nil {
		return nil
	}
	return s.GetFamilyDetails(family)
}

// HasInstanceStore returns whether an instance type comes with local NVMe instance storage
func (s *SupportedFamilies) HasInstanceStore(instanceType string) bool {
	details := s.GetInstanceTypeDetails(instanceType)
	return details != nil && details.InstanceStore
}

// GetFamilyNames returns list of all supported family names (e.g. c5d)
func (s *SupportedFamilies) GetFamilyNames() []string {
	return s.familySortOrder
}

// GetSupportedFamiliesOutput returns a nicely formatted comma separated list of name (friendly description)
func (s *SupportedFamilies) GetSupportedFamiliesOutput() string {
	var output []string
	for _, f := range s.familySortOrder {
		output = append(output, fmt.Sprintf("%v (%v)", f, s.supportedFamilies[f].Friendly))
	}
	return strings.Join(output, ", ")
}
