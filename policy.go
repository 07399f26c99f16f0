package geocsv

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	geohash "github.com/TomiHiltunen/geohash-golang"
)

// PolicyMode is the action taken on a match whose reference position is
// farther than the configured maximum distance from the entity.
type PolicyMode int

const (
	// Warn accepts the match and logs a warning.
	Warn PolicyMode = iota
	// Reject drops the payload and logs a warning.
	Reject
	// RejectAndLog drops the payload, logs a warning and writes an audit entry.
	RejectAndLog
)

func (m PolicyMode) String() string {
	switch m {
	case Warn:
		return "warn"
	case Reject:
		return "reject"
	case RejectAndLog:
		return "rejectandlog"
	}
	return fmt.Sprintf("PolicyMode(%d)", int(m))
}

func (m PolicyMode) valid() bool {
	return m >= Warn && m <= RejectAndLog
}

// ParsePolicyMode parses a policy name, case-insensitively. "delete" is
// accepted for Reject and "log" for RejectAndLog.
func ParsePolicyMode(s string) (PolicyMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "warn":
		return Warn, nil
	case "reject", "delete":
		return Reject, nil
	case "rejectandlog", "reject_and_log", "log":
		return RejectAndLog, nil
	}
	return 0, fmt.Errorf("%w: unknown policy %q", ErrInvalidConfig, s)
}

// Action is the decision for a single match.
type Action int

const (
	ActionAccept Action = iota
	ActionReject
)

func (a Action) String() string {
	if a == ActionAccept {
		return "accept"
	}
	return "reject"
}

// AuditEntry describes a rejected match.
type AuditEntry struct {
	ID        int64
	QueryLat  float64
	QueryLon  float64
	RecordLat float64
	RecordLon float64
	Payload   string
	Distance  float64 // meters
}

// MatchOutcome is the result of applying a MatchPolicy to a found record.
type MatchOutcome struct {
	Action  Action
	Payload string      // empty unless Action is ActionAccept
	Audit   *AuditEntry // set only in RejectAndLog mode
}

// MatchPolicy decides whether a found record may be merged into an entity.
type MatchPolicy struct {
	Mode        PolicyMode
	MaxDistance float64 // meters; +Inf never rejects
	logger      *slog.Logger
}

// NewMatchPolicy returns a policy. A nil logger discards warnings.
func NewMatchPolicy(mode PolicyMode, maxDistance float64, logger *slog.Logger) *MatchPolicy {
	if logger == nil {
		logger = discardLogger()
	}
	return &MatchPolicy{Mode: mode, MaxDistance: maxDistance, logger: logger}
}

// Decide applies the policy to rec matched for an entity at (lat, lon).
// Unknown coordinates on either side always accept.
func (p *MatchPolicy) Decide(rec Record, lat, lon float64) MatchOutcome {
	accept := MatchOutcome{Action: ActionAccept, Payload: rec.Payload}
	if math.IsInf(p.MaxDistance, 1) {
		return accept
	}
	dist, ok := distanceBetween(lat, lon, rec.Lat, rec.Lon)
	if !ok || dist <= p.MaxDistance {
		return accept
	}

	p.logger.Warn("matched record is too far from entity",
		"id", rec.ID,
		"distance_m", dist,
		"max_distance_m", p.MaxDistance,
		"policy", p.Mode.String(),
		"geohash", geohash.Encode(lat, lon),
		"record_geohash", geohash.Encode(rec.Lat, rec.Lon),
	)

	switch p.Mode {
	case Reject:
		return MatchOutcome{Action: ActionReject}
	case RejectAndLog:
		return MatchOutcome{Action: ActionReject, Audit: &AuditEntry{
			ID:        rec.ID,
			QueryLat:  lat,
			QueryLon:  lon,
			RecordLat: rec.Lat,
			RecordLon: rec.Lon,
			Payload:   rec.Payload,
			Distance:  dist,
		}}
	}
	return accept
}
