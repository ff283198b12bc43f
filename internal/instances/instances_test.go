package instances

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSupportedFamilies_IsSupportedFamily(t *testing.T) {
	tests := map[string]struct {
		families    []*Family
		input       string
		expected    bool
		expectedErr error
	}{
		"family that is supported returns true": {
			families: []*Family{
				{Name: "c5d", Friendly: "friendly", Arch: ArchX86},
			},
			input:    "c5d",
			expected: true,
		},
		"family that is not supported returns false": {
			families: []*Family{
				{Name: "c5d", Friendly: "friendly", Arch: ArchX86},
			},
			input:    "p4d",
			expected: false,
		},
		"if no supported families returns false": {
			families: []*Family{},
			input:    "empty",
			expected: false,
		},
		"missing name returns error": {
			families: []*Family{
				{Friendly: "friendly", Arch: ArchX86},
			},
			input:       "c5d",
			expectedErr: ErrMissingName,
		},
		"missing friendly description returns error": {
			families: []*Family{
				{Name: "c5d", Arch: ArchX86},
			},
			input:       "c5d",
			expectedErr: ErrMissingFriendly,
		},
		"missing arch returns error": {
			families: []*Family{
				{Name: "c5d", Friendly: "friendly"},
			},
			input:       "c5d",
			expectedErr: ErrMissingArch,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			supported, err := NewSupportedFamilies(tc.families...)
			assert.ErrorIs(t, err, tc.expectedErr)
			if err == nil {
				assert.Equal(t, tc.expected, supported.IsSupportedFamily(tc.input))
			}
		})
	}
}

func TestFamilyOf(t *testing.T) {
	tests := map[string]struct {
		input       string
		expected    string
		expectedErr error
	}{
		"standard instance type": {input: "c5d.large", expected: "c5d"},
		"metal instance type":    {input: "m5d.metal", expected: "m5d"},
		"missing size":           {input: "c5d", expectedErr: ErrInvalidInstanceType},
		"empty family":           {input: ".large", expectedErr: ErrInvalidInstanceType},
		"too many parts":         {input: "c5d.large.x", expectedErr: ErrInvalidInstanceType},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			family, err := FamilyOf(tc.input)
			assert.ErrorIs(t, err, tc.expectedErr)
			assert.Equal(t, tc.expected, family)
		})
	}
}

func TestSupportedFamilies_HasInstanceStore(t *testing.T) {
	supported, err := NewSupportedFamilies(
		&Family{Name: "c5", Friendly: "compute", Arch: ArchX86},
		&Family{Name: "c5d", Friendly: "compute, nvme", Arch: ArchX86, InstanceStore: true},
	)
	assert.Nil(t, err)

	tests := map[string]struct {
		input    string
		expected bool
	}{
		"family with instance store":    {input: "c5d.2xlarge", expected: true},
		"family without instance store": {input: "c5.2xlarge", expected: false},
		"unknown family":                {input: "x1e.xlarge", expected: false},
		"malformed instance type":       {input: "c5d", expected: false},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, supported.HasInstanceStore(tc.input))
		})
	}
}

func TestSupportedFamilies_GetSupportedFamiliesOutput(t *testing.T) {
	supported, err := NewSupportedFamilies(
		&Family{Name: "c5", Friendly: "compute", Arch: ArchX86},
		&Family{Name: "c6gd", Friendly: "graviton", Arch: ArchARM, InstanceStore: true},
	)
	assert.Nil(t, err)

	assert.Equal(t, []string{"c5", "c6gd"}, supported.GetFamilyNames())
	assert.Equal(t, "c5 (compute), c6gd (graviton)", supported.GetSupportedFamiliesOutput())
	assert.Equal(t, ArchARM, supported.GetInstanceTypeDetails("c6gd.xlarge").Arch)
}

func TestSupported_Catalog(t *testing.T) {
	assert.True(t, Supported.IsSupportedFamily("c5d"))
	assert.True(t, Supported.HasInstanceStore("c5d.large"))
	assert.False(t, Supported.HasInstanceStore("t3.micro"))
}
