package instances

// Supported is the catalog of instance families the video processing instance is known to work on
var Supported = mustSupportedFamilies(
	&Family{Name: "c5", Friendly: "compute optimized", Arch: ArchX86},
	&Family{Name: "c5d", Friendly: "compute optimized, nvme storage", Arch: ArchX86, InstanceStore: true},
	&Family{Name: "c5a", Friendly: "compute optimized, amd", Arch: ArchX86},
	&Family{Name: "c5ad", Friendly: "compute optimized, amd, nvme storage", Arch: ArchX86, InstanceStore: true},
	&Family{Name: "c6i", Friendly: "compute optimized", Arch: ArchX86},
	&Family{Name: "c6id", Friendly: "compute optimized, nvme storage", Arch: ArchX86, InstanceStore: true},
	&Family{Name: "c6g", Friendly: "compute optimized, graviton", Arch: ArchARM},
	&Family{Name: "c6gd", Friendly: "compute optimized, graviton, nvme storage", Arch: ArchARM, InstanceStore: true},
	&Family{Name: "m5", Friendly: "general purpose", Arch: ArchX86},
	&Family{Name: "m5d", Friendly: "general purpose, nvme storage", Arch: ArchX86, InstanceStore: true},
	&Family{Name: "m6i", Friendly: "general purpose", Arch: ArchX86},
	&Family{Name: "r5", Friendly: "memory optimized", Arch: ArchX86},
	&Family{Name: "r5d", Friendly: "memory optimized, nvme storage", Arch: ArchX86, InstanceStore: true},
	&Family{Name: "t3", Friendly: "burstable", Arch: ArchX86},
	&Family{Name: "t3a", Friendly: "burstable, amd", Arch: ArchX86},
	&Family{Name: "g4dn", Friendly: "gpu, nvme storage", Arch: ArchX86, InstanceStore: true},
)

func mustSupportedFamilies(families ...*Family) *SupportedFamilies {
	s, err := NewSupportedFamilies(families...)
	if err != nil {
		panic(err)
	}
	return s
}
