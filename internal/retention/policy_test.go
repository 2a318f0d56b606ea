package retention

import (
	"testing"
	"time"

	"github.com/sofa-project/sofa"
)

func rec(version string, daysAgo int) *sofa.ReleaseRecord {
	return &sofa.ReleaseRecord{
		Platform:    sofa.PlatformIOS,
		Version:     version,
		Title:       "iOS " + version,
		ReleaseDate: time.Now().AddDate(0, 0, -daysAgo),
	}
}

func TestS5RetentionLastNMajor(t *testing.T) {
	recs := []*sofa.ReleaseRecord{
		rec("16.7.10", 400),
		rec("17.0", 300),
		rec("17.7.2", 100),
		rec("18.2", 10),
	}
	policy := Policy{Mode: ModeLastNMajor, LastN: 2}
	out := Apply(recs, policy, nil)
	for _, r := range out {
		if r.Version == "16.7.10" {
			t.Fatal("16.x should be dropped under last_n_major=2")
		}
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 surviving releases (17.0, 17.7.2, 18.2), got %d", len(out))
	}
}

func TestS5PinSurvivesOutsideWindow(t *testing.T) {
	recs := []*sofa.ReleaseRecord{
		rec("16.7.10", 400),
		rec("17.7.2", 100),
		rec("18.2", 10),
	}
	policy := Policy{Mode: ModeLastNMajor, LastN: 2, AllowPinsOutsideWindow: true}
	pins := []Pin{{Version: "16.7.10"}}
	out := Apply(recs, policy, pins)

	found := false
	for _, r := range out {
		if r.Version == "16.7.10" {
			found = true
			if !r.IsPinned {
				t.Error("pinned release should have IsPinned set")
			}
		}
	}
	if !found {
		t.Fatal("pinned 16.7.10 should survive retention")
	}
}

func TestModeAllKeepsEverything(t *testing.T) {
	recs := []*sofa.ReleaseRecord{rec("10.0", 2000), rec("15.3", 1)}
	out := Apply(recs, Policy{Mode: ModeAll}, nil)
	if len(out) != 2 {
		t.Fatalf("got %d, want 2", len(out))
	}
}

func TestDefaultPolicyPerPlatform(t *testing.T) {
	if DefaultPolicy(sofa.PlatformMacOS).Mode != ModeAll {
		t.Error("macOS default should be all")
	}
	if p := DefaultPolicy(sofa.PlatformIOS); p.Mode != ModeLastNMajor || p.LastN != 2 {
		t.Errorf("iOS default = %+v", p)
	}
}
