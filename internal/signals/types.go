package signals

import (
	"math"
	"time"
)

// #region source

// Source records where a bias signal was produced.
type Source string

const (
	SourcePattern  Source = "pattern"  // lexical patterns in user text
	SourceExternal Source = "external" // supplied by a caller-side classifier
)

// #endregion source

// #region state

// DefaultTTLSeconds is the freshness window stamped on every extracted signal.
const DefaultTTLSeconds = 1800

// BiasSignalState is one scored signal as observed at LastSeenAt.
// A zero LastSeenAt means the observation time is unknown.
type BiasSignalState struct {
	Score      float64   `json:"score"`
	Source     Source    `json:"source"`
	LastSeenAt time.Time `json:"lastSeenAt"`
	TTLSeconds float64   `json:"ttlSeconds,omitempty"` // <= 0 means no expiry
}

// HasTTL reports whether the state carries a usable freshness window.
func (s BiasSignalState) HasTTL() bool {
	return s.TTLSeconds > 0 && !math.IsNaN(s.TTLSeconds) && !math.IsInf(s.TTLSeconds, 0)
}

// Expired reports whether the state is past its TTL at now.
func (s BiasSignalState) Expired(now time.Time) bool {
	if !s.HasTTL() || s.LastSeenAt.IsZero() {
		return false
	}
	return now.Sub(s.LastSeenAt).Seconds() > s.TTLSeconds
}

// #endregion state

// #region helpers

// Clamp01 restricts v to [0, 1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion helpers
