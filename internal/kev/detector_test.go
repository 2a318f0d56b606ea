package kev

import (
	"testing"

	"github.com/sofa-project/sofa"
)

func TestAnalyzeAppleDirect(t *testing.T) {
	d := &Detector{}
	info := d.Analyze("CVE-2024-1", sofa.PlatformIOS, "Apple is aware of a report that this issue may have been actively exploited against versions of iOS before 17.2.")
	if !info.IsExploited {
		t.Fatal("expected exploited")
	}
	if info.Confidence != sofa.ConfidenceConfirmed {
		t.Errorf("confidence = %v", info.Confidence)
	}
	if !info.HasSource(sofa.SourceAppleDirect) {
		t.Error("expected apple_direct source")
	}
}

func TestAnalyzeAccumulatesMultipleSources(t *testing.T) {
	d := &Detector{KEV: map[string]sofa.KEVEntry{"CVE-2024-2": {CVEID: "CVE-2024-2"}}}
	info := d.Analyze("CVE-2024-2", sofa.PlatformMacOS, "Apple is aware of a report that this issue may have been exploited.")
	if !info.HasSource(sofa.SourceAppleDirect) || !info.HasSource(sofa.SourceCISAKEV) {
		t.Errorf("expected both sources to accumulate, got %v", info.Sources)
	}
}

func TestKEVMembershipUpgradesButNeverDowngrades(t *testing.T) {
	d := &Detector{KEV: map[string]sofa.KEVEntry{"CVE-2024-3": {CVEID: "CVE-2024-3"}}}
	info := d.Analyze("CVE-2024-3", sofa.PlatformIOS, "Apple is aware of a report that this issue may have been exploited.")
	if info.Confidence != sofa.ConfidenceConfirmed {
		t.Errorf("confidence should remain confirmed, got %v", info.Confidence)
	}

	plainKEV := d.Analyze("CVE-2024-4", sofa.PlatformIOS, "no known signal")
	if plainKEV.IsExploited {
		t.Fatal("no KEV entry and no Apple text: should not be exploited")
	}
}

func TestS3CISAKEVCrossReference(t *testing.T) {
	d := &Detector{KEV: map[string]sofa.KEVEntry{"CVE-2024-44308": {CVEID: "CVE-2024-44308"}}}
	info := d.Analyze("CVE-2024-44308", sofa.PlatformMacOS, "")
	if !info.IsExploited {
		t.Fatal("KEV membership alone must mark exploited")
	}
	if !info.HasSource(sofa.SourceCISAKEV) {
		t.Error("expected cisa_kev source")
	}
}

func TestS4CrossPlatformWarningNeverPromotesToExploited(t *testing.T) {
	d := &Detector{}
	releases := map[sofa.Platform][]*sofa.ReleaseRecord{
		sofa.PlatformIOS: {{
			Platform: sofa.PlatformIOS, Version: "18.2",
			CVEs: []string{"CVE-2024-9"},
			CVEDetails: map[string]sofa.CVEDetail{
				"CVE-2024-9": {Impact: "Apple is aware of a report that this issue may have been actively exploited."},
			},
		}},
		sofa.PlatformMacOS: {{
			Platform: sofa.PlatformMacOS, Version: "15.3",
			CVEs: []string{"CVE-2024-9"},
			CVEDetails: map[string]sofa.CVEDetail{
				"CVE-2024-9": {Impact: "no signal here"},
			},
		}},
	}
	d.EnrichAll(releases)

	macRec := releases[sofa.PlatformMacOS][0]
	if macRec.ActivelyExploitedCVEs() != nil {
		t.Fatalf("macOS must not list CVE-2024-9 as actively exploited, got %v", macRec.ActivelyExploitedCVEs())
	}
	if len(macRec.CrossPlatformWarnings) != 1 {
		t.Fatalf("expected one cross-platform warning, got %d", len(macRec.CrossPlatformWarnings))
	}
	if macRec.CrossPlatformWarnings[0].Notes != "Known exploited on: iOS" {
		t.Errorf("notes = %q", macRec.CrossPlatformWarnings[0].Notes)
	}

	iosRec := releases[sofa.PlatformIOS][0]
	if got := iosRec.ActivelyExploitedCVEs(); len(got) != 1 || got[0] != "CVE-2024-9" {
		t.Errorf("iOS ActivelyExploitedCVEs = %v", got)
	}
}
