// Package alerting implements change-triggered alerting for repowatch:
// time-windowed aggregation of observed events, fingerprint-based
// deduplication, and a silence-period gate that fires each distinct
// condition at most once per silence window.
package alerting

import (
	"encoding/base64"

	"github.com/good-yellow-bee/repowatch/internal/models"
)

// fingerprintLen is the fixed length fingerprints are truncated to.
// This is a coarse dedup key, not a cryptographic digest; collisions
// are accepted.
const fingerprintLen = 16

// messagePrefixLen is how much of the message contributes to the
// fingerprint. Near-identical messages that differ only in their tail
// (ids, counters) dedup to the same key.
const messagePrefixLen = 100

// Fingerprint derives the deduplication key for an event from its
// source, message prefix, and severity. The derivation is deterministic
// and never returns an empty string.
func Fingerprint(source, message string, severity models.Severity) string {
	msg := message
	if len(msg) > messagePrefixLen {
		msg = msg[:messagePrefixLen]
	}

	raw := source + "|" + msg + "|" + string(severity)
	enc := base64.StdEncoding.EncodeToString([]byte(raw))
	if len(enc) > fingerprintLen {
		enc = enc[:fingerprintLen]
	}
	return enc
}

// EventFingerprint derives the fingerprint for an event.
func EventFingerprint(e *models.Event) string {
	return Fingerprint(e.Source, e.Message, e.Severity)
}
