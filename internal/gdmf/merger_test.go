package gdmf

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sofa-project/sofa"
)

func TestS6GDMFDeviceMerge(t *testing.T) {
	m := &Merger{Assets: map[string][]sofa.GDMFAsset{
		"macOS": {
			{ProductVersion: "18.2", Build: "22D50", SupportedDevices: []string{"A", "B"}},
			{ProductVersion: "18.2", Build: "22D51", SupportedDevices: []string{"B", "C"}},
			{ProductVersion: "18.2", Build: "22D50", SupportedDevices: []string{"C", "D"}},
		},
	}}
	r := &sofa.ReleaseRecord{Platform: sofa.PlatformMacOS, Version: "18.2"}
	m.Merge(r)

	if diff := cmp.Diff([]string{"A", "B", "C", "D"}, r.SupportedDevices); diff != "" {
		t.Errorf("SupportedDevices mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"22D50", "22D51"}, r.AllBuilds); diff != "" {
		t.Errorf("AllBuilds mismatch (-want +got):\n%s", diff)
	}
	if r.Build != "22D50" {
		t.Errorf("Build = %q, want 22D50", r.Build)
	}
}

func TestWatchOSUnderIOSKey(t *testing.T) {
	m := &Merger{Assets: map[string][]sofa.GDMFAsset{
		"iOS": {
			{ProductVersion: "11.2", Build: "22S123", SupportedDevices: []string{"Watch6,1", "Watch6,2"}},
			{ProductVersion: "11.2", Build: "22H222", SupportedDevices: []string{"iPhone15,2"}},
		},
	}}
	r := &sofa.ReleaseRecord{Platform: sofa.PlatformWatchOS, Version: "11.2"}
	m.Merge(r)
	if len(r.SupportedDevices) != 2 || r.SupportedDevices[0] != "Watch6,1" {
		t.Errorf("watchOS devices = %v", r.SupportedDevices)
	}
	if len(r.AllBuilds) != 1 || r.AllBuilds[0] != "22S123" {
		t.Errorf("watchOS builds = %v, want only the Watch-prefixed asset's build", r.AllBuilds)
	}
}

func TestNoMatchLeavesOwnBuildOnly(t *testing.T) {
	m := &Merger{Assets: map[string][]sofa.GDMFAsset{}}
	r := &sofa.ReleaseRecord{Platform: sofa.PlatformMacOS, Version: "18.2", Build: "24D60"}
	m.Merge(r)
	if len(r.SupportedDevices) != 0 {
		t.Errorf("expected no devices, got %v", r.SupportedDevices)
	}
	if diff := cmp.Diff([]string{"24D60"}, r.AllBuilds); diff != "" {
		t.Errorf("AllBuilds mismatch (-want +got):\n%s", diff)
	}
}
