package models

import "testing"

func TestClassifyUpdate(t *testing.T) {
	tests := []struct {
		name    string
		current string
		latest  string
		want    UpdateType
	}{
		{"major bump", "1.2.3", "2.0.0", UpdateTypeMajor},
		{"minor bump", "1.2.3", "1.3.0", UpdateTypeMinor},
		{"patch bump", "1.2.3", "1.2.4", UpdateTypePatch},
		{"v prefix", "v1.2.3", "v1.2.4", UpdateTypePatch},
		{"mixed prefix", "1.2.3", "v1.3.0", UpdateTypeMinor},
		{"prerelease suffix ignored", "1.2.3", "1.2.4-rc.1", UpdateTypePatch},
		{"build metadata ignored", "1.2.3", "1.2.4+build5", UpdateTypePatch},
		{"two components", "1.2", "1.3", UpdateTypeMinor},
		{"single component", "1", "2", UpdateTypeMajor},
		{"identical", "1.2.3", "1.2.3", UpdateTypeUnknown},
		{"garbage current", "latest", "1.2.3", UpdateTypeUnknown},
		{"garbage latest", "1.2.3", "nightly", UpdateTypeUnknown},
		{"empty", "", "", UpdateTypeUnknown},
		{"major downgrade still major", "2.0.0", "1.9.9", UpdateTypeMajor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyUpdate(tt.current, tt.latest); got != tt.want {
				t.Errorf("ClassifyUpdate(%q, %q) = %s, want %s", tt.current, tt.latest, got, tt.want)
			}
		})
	}
}
