package alerting

import (
	"sort"
	"time"

	"github.com/good-yellow-bee/repowatch/internal/models"
)

// topFingerprintLimit caps how many fingerprints a Summary reports.
const topFingerprintLimit = 5

// SeverityFilter is the set of severities that count toward alerting.
// An empty filter counts every severity.
type SeverityFilter map[models.Severity]struct{}

// NewSeverityFilter builds a filter from a list of severities.
func NewSeverityFilter(severities []models.Severity) SeverityFilter {
	f := make(SeverityFilter, len(severities))
	for _, s := range severities {
		f[s] = struct{}{}
	}
	return f
}

// Allows reports whether the severity counts toward alerting.
func (f SeverityFilter) Allows(s models.Severity) bool {
	if len(f) == 0 {
		return true
	}
	_, ok := f[s]
	return ok
}

// FingerprintCount is one fingerprint's in-window tally.
type FingerprintCount struct {
	Fingerprint string    `json:"fingerprint"`
	Count       int       `json:"count"`
	LastSeen    time.Time `json:"last_seen"`
}

// Summary holds the aggregate counts of events within a trailing window.
type Summary struct {
	TotalCount         int                     `json:"total_count"`
	CountBySeverity    map[models.Severity]int `json:"count_by_severity"`
	CountBySource      map[string]int          `json:"count_by_source"`
	CountByFingerprint map[string]int          `json:"count_by_fingerprint"`

	// TopFingerprints lists up to five fingerprints sorted by count
	// descending, ties broken by most-recent-event-first.
	TopFingerprints []FingerprintCount `json:"top_fingerprints"`
}

// Summarize computes windowed counts over an explicit event slice at an
// explicit point in time. It never reads the wall clock. Events outside
// the trailing window or excluded by the severity filter do not count.
func Summarize(events []*models.Event, now time.Time, window time.Duration, filter SeverityFilter) Summary {
	s := Summary{
		CountBySeverity:    make(map[models.Severity]int),
		CountBySource:      make(map[string]int),
		CountByFingerprint: make(map[string]int),
	}

	cutoff := now.Add(-window)
	lastSeen := make(map[string]time.Time)

	for _, e := range events {
		if e.Timestamp.Before(cutoff) || e.Timestamp.After(now) {
			continue
		}
		if !filter.Allows(e.Severity) {
			continue
		}

		fp := e.Fingerprint
		if fp == "" {
			fp = EventFingerprint(e)
		}

		s.TotalCount++
		s.CountBySeverity[e.Severity]++
		s.CountBySource[e.Source]++
		s.CountByFingerprint[fp]++
		if e.Timestamp.After(lastSeen[fp]) {
			lastSeen[fp] = e.Timestamp
		}
	}

	s.TopFingerprints = rankFingerprints(s.CountByFingerprint, lastSeen, topFingerprintLimit)
	return s
}

// rankFingerprints orders fingerprints by count descending, breaking
// ties by most recent event first. A limit <= 0 means no limit.
func rankFingerprints(counts map[string]int, lastSeen map[string]time.Time, limit int) []FingerprintCount {
	ranked := make([]FingerprintCount, 0, len(counts))
	for fp, n := range counts {
		ranked = append(ranked, FingerprintCount{
			Fingerprint: fp,
			Count:       n,
			LastSeen:    lastSeen[fp],
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		if !ranked[i].LastSeen.Equal(ranked[j].LastSeen) {
			return ranked[i].LastSeen.After(ranked[j].LastSeen)
		}
		return ranked[i].Fingerprint < ranked[j].Fingerprint
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
