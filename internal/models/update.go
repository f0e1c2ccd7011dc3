package models

import (
	"strconv"
	"strings"
)

// UpdateType classifies a version delta.
type UpdateType string

const (
	UpdateTypeMajor   UpdateType = "major"
	UpdateTypeMinor   UpdateType = "minor"
	UpdateTypePatch   UpdateType = "patch"
	UpdateTypeUnknown UpdateType = "unknown"
)

// DependencyUpdate describes one dependency with a newer version available.
type DependencyUpdate struct {
	Name           string     `json:"name"`
	CurrentVersion string     `json:"current_version"`
	LatestVersion  string     `json:"latest_version"`
	UpdateType     UpdateType `json:"update_type"`
	AutoEligible   bool       `json:"auto_eligible"`
}

// ClassifyUpdate classifies the delta between two versions as
// major/minor/patch. Versions are compared on their leading
// dotted-numeric components; a leading "v" is ignored. Anything that
// cannot be compared numerically classifies as unknown.
func ClassifyUpdate(current, latest string) UpdateType {
	cur := parseVersionParts(current)
	lat := parseVersionParts(latest)
	if cur == nil || lat == nil {
		return UpdateTypeUnknown
	}

	if lat[0] != cur[0] {
		return UpdateTypeMajor
	}
	if lat[1] != cur[1] {
		return UpdateTypeMinor
	}
	if lat[2] != cur[2] {
		return UpdateTypePatch
	}
	return UpdateTypeUnknown
}

// parseVersionParts extracts [major, minor, patch] from a version string.
// Missing components default to zero. Returns nil if the major component
// is not numeric.
func parseVersionParts(v string) []int {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	// Strip pre-release/build suffix
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}

	parts := strings.Split(v, ".")
	out := []int{0, 0, 0}
	for i := 0; i < len(parts) && i < 3; i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			if i == 0 {
				return nil
			}
			break
		}
		out[i] = n
	}
	return out
}
