package sofa

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDetectPlatform(t *testing.T) {
	tests := []struct {
		in   string
		want Platform
		ok   bool
	}{
		{"macOS Sequoia 15.3", PlatformMacOS, true},
		{"iPadOS 18.2", PlatformIPadOS, true},
		{"iOS 18.2", PlatformIOS, true},
		{"watchOS 11.2", PlatformWatchOS, true},
		{"tvOS 18.2", PlatformTVOS, true},
		{"visionOS 2.2", PlatformVisionOS, true},
		{"Safari 18.2", PlatformSafari, true},
		{"Xcode 16.2", PlatformUnknown, false},
	}
	for _, tt := range tests {
		got, ok := DetectPlatform(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("DetectPlatform(%q) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSortCVEIDs(t *testing.T) {
	in := []string{"CVE-2024-44308", "CVE-2023-99999", "CVE-2024-1000", "CVE-2023-1"}
	want := []string{"CVE-2023-1", "CVE-2023-99999", "CVE-2024-1000", "CVE-2024-44308"}
	got := SortCVEIDs(in)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SortCVEIDs mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateExploitationInfoCrossPlatformAlone(t *testing.T) {
	i := ExploitationInfo{
		CVEID:       "CVE-2024-1",
		IsExploited: true,
		Sources:     []ExploitationSource{SourceCrossPlatform},
	}
	if err := ValidateExploitationInfo(i); err == nil {
		t.Fatal("expected error: cross_platform alone must never mark exploited")
	}
}

func TestValidateExploitationInfoWithRealSource(t *testing.T) {
	i := ExploitationInfo{
		CVEID:       "CVE-2024-1",
		IsExploited: true,
		Sources:     []ExploitationSource{SourceCrossPlatform, SourceCISAKEV},
	}
	if err := ValidateExploitationInfo(i); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReleaseRecordValidateBuildInAllBuilds(t *testing.T) {
	r := &ReleaseRecord{
		Platform:  PlatformMacOS,
		Version:   "15.3",
		Build:     "24D60",
		AllBuilds: []string{"24D70"},
	}
	if err := r.Validate(); err == nil {
		t.Fatal("expected error: build not in AllBuilds")
	}
	r.AllBuilds = append(r.AllBuilds, "24D60")
	if err := r.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConfidenceMaxNeverDowngrades(t *testing.T) {
	if got := ConfidenceConfirmed.Max(ConfidenceHigh); got != ConfidenceConfirmed {
		t.Errorf("Max(confirmed, high) = %v, want confirmed", got)
	}
	if got := ConfidenceLow.Max(ConfidenceHigh); got != ConfidenceHigh {
		t.Errorf("Max(low, high) = %v, want high", got)
	}
}
