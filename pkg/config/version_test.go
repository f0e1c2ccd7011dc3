package config

import (
	"runtime"
	"strings"
	"testing"
)

func TestCurrent(t *testing.T) {
	info := Current()
	if info.Version != Version || info.Commit != Commit || info.BuildTime != BuildTime {
		t.Errorf("Current() = %+v, want the package build variables", info)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", info.GoVersion, runtime.Version())
	}
}

func TestInfoString(t *testing.T) {
	s := Info{Version: "1.2.0", Commit: "abc1234", BuildTime: "2026-08-25", GoVersion: "go1.24.7"}.String()
	for _, want := range []string{"repowatch 1.2.0", "abc1234", "2026-08-25", "go1.24.7"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}
