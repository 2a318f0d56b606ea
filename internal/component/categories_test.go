package component

import (
	"testing"

	"github.com/sofa-project/sofa"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  string
		want sofa.ComponentCategory
	}{
		{"WebKit PDF", sofa.ComponentWebKit},
		{"AppleMobileFileIntegrity", sofa.ComponentSecurity},
		{"Intel Graphics Driver", sofa.ComponentGraphics},
		{"Generic Printer Driver", sofa.ComponentDrivers},
		{"Kernel", sofa.ComponentKernel},
		{"Xcode", sofa.ComponentDeveloperTools},
		{"Mail.app", sofa.ComponentApplications},
		{"Some.framework", sofa.ComponentSystemServices},
		{"Totally Unknown Thing", sofa.ComponentSystem},
		{"", sofa.ComponentSystem},
	}
	for _, tt := range tests {
		if got := Normalize(tt.raw); got != tt.want {
			t.Errorf("Normalize(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}
