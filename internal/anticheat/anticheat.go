// Package anticheat implements heuristic session-integrity tracking for
// browser minigames.
//
// Every play-through is tracked as a Session: an append-only action log,
// periodic score samples, and any Flags the two detectors raise along the
// way. On end, the session is collapsed into an immutable, hashed Report
// for the backend score API to adjudicate.
//
// Everything here is advisory. A Flag is evidence, never enforcement; the
// report hash is a tamper deterrent, not a tamper proof. The backend is the
// sole authority and must re-derive trust from raw signal; the client-side
// `valid` bit is an input to that decision, never a gate.
package anticheat

import (
	"context"
	"errors"
	"sync"

	"github.com/playguard/playguard/internal/pagination"
)

// ErrUnknownGame is returned when startSession is called with a game ID
// outside the whitelist. Unlike a stale session handle, this is a caller
// bug and fails loudly.
var ErrUnknownGame = errors.New("anticheat: unknown game id")

// ErrReportNotFound is returned by report stores for unknown report IDs.
var ErrReportNotFound = errors.New("anticheat: report not found")

// FlagType identifies one kind of anomaly evidence.
type FlagType string

const (
	// FlagInhumanSpeed is sustained sub-50ms input cadence across the
	// recent action window. A single fast input is a double-tap; ten in a
	// row is a script.
	FlagInhumanSpeed FlagType = "INHUMAN_SPEED"
	// FlagRepetitivePattern means the last 20 action types are two back-to-back
	// copies of the same 10-element sequence (macro loop).
	FlagRepetitivePattern FlagType = "REPETITIVE_PATTERN"
	// FlagImpossibleScore is a cumulative score above the game's maximum.
	FlagImpossibleScore FlagType = "IMPOSSIBLE_SCORE"
	// FlagScoreRateTooHigh is points per second above twice the game's cap.
	FlagScoreRateTooHigh FlagType = "SCORE_RATE_TOO_HIGH"
	// FlagNegativeScoreDelta means the score went backwards in a game without
	// sacrifice mechanics.
	FlagNegativeScoreDelta FlagType = "NEGATIVE_SCORE_DELTA"
)

// ActionEvent is one discrete input: a jump, a shot, a lane change.
type ActionEvent struct {
	Type  string            `json:"type"`
	Time  int64             `json:"time"`           // wall-clock ms
	Delta int64             `json:"delta"`          // ms since previous action; 0 for the first
	Data  map[string]string `json:"data,omitempty"` // small opaque payload (coordinates, target IDs)
}

// ScoreSample is one score checkpoint.
type ScoreSample struct {
	Score float64 `json:"score"` // cumulative score at this point
	Delta float64 `json:"delta"` // change since the previous sample
	Time  int64   `json:"time"`  // wall-clock ms
}

// Flag is one piece of anomaly evidence. Detail carries type-specific
// measurements (e.g. observed rate vs. threshold) for the adjudicator.
type Flag struct {
	Type   FlagType           `json:"type"`
	Time   int64              `json:"time"` // wall-clock ms
	Detail map[string]float64 `json:"detail,omitempty"`
}

// Threshold is the per-game score plausibility envelope.
type Threshold struct {
	MaxScorePerSecond float64 `json:"maxScorePerSecond"`
	MaxTotalScore     float64 `json:"maxTotalScore"`
}

// DefaultThreshold is the conservative fallback for whitelisted games with
// no explicit entry (fail-open: a generic cap beats rejecting a real game).
var DefaultThreshold = Threshold{
	MaxScorePerSecond: 100,
	MaxTotalScore:     1_000_000,
}

// Retention cap for the per-session action log. When the log exceeds
// maxActionLog, it is truncated to the most recent keepActionLog entries.
// Pattern detection only needs a recent window, and abandoned bot sessions
// must not grow memory without bound.
const (
	maxActionLog  = 1000
	keepActionLog = 500
)

// Session is one tracked play-through of one minigame. It is owned by the
// Recorder: external callers only ever hold the opaque ID, never a
// reference, so nothing outside this package can corrupt the log structure.
//
// All mutation happens under mu, acquired by the Recorder per call. Within
// one session, actions and scores are therefore processed strictly in call
// order; sessions never share state beyond the registry map itself.
type Session struct {
	mu sync.Mutex

	ID             string
	GameID         string
	StartTime      int64 // wall-clock ms at creation
	LastActionTime int64 // wall-clock ms of the newest action; 0 until the first
	Actions        []ActionEvent
	Scores         []ScoreSample
	Flags          []Flag

	// actionTotal counts every recorded action, surviving log truncation,
	// so the final report's actionCount is the true total.
	actionTotal int

	// Action index at which each detector last fired, for re-fire
	// suppression. -1 means never.
	lastSpeedFlagAt   int
	lastPatternFlagAt int
}

// addFlag appends anomaly evidence to the session. Flags accumulate for the
// whole session life; nothing ever removes one. Caller holds s.mu.
func (s *Session) addFlag(f Flag) {
	s.Flags = append(s.Flags, f)
	flagsRaised.WithLabelValues(string(f.Type)).Inc()
}

// Report is the finalized, externally consumed artifact of a session.
// Created once at endSession, immutable afterwards; the live session it was
// derived from is deleted in the same operation.
type Report struct {
	ID          string  `json:"id"` // the session ID
	GameID      string  `json:"gameId"`
	StartTime   int64   `json:"startTime"`
	EndTime     int64   `json:"endTime"`
	DurationMs  int64   `json:"durationMs"`
	FinalScore  float64 `json:"finalScore"`
	ActionCount int     `json:"actionCount"`
	Flags       []Flag  `json:"flags"`
	Valid       bool    `json:"valid"` // true iff Flags is empty; advisory only
	Hash        string  `json:"hash"`  // IntegrityHasher output; forwarded unmodified
}

// Store persists finalized session reports for the score-submission path.
// ListByGame returns reports newest-first, starting after the cursor when
// one is given; callers fetch limit+1 to detect further pages.
type Store interface {
	Record(ctx context.Context, report *Report) error
	Get(ctx context.Context, id string) (*Report, error)
	ListByGame(ctx context.Context, gameID string, limit int, after *pagination.Cursor) ([]*Report, error)
}

// FlagEmitter receives anti-cheat lifecycle events (e.g. for a realtime
// dashboard feed). Implementations must not block.
type FlagEmitter interface {
	EmitSessionStarted(sessionID, gameID string)
	EmitFlagRaised(sessionID, gameID string, flag Flag)
	EmitSessionEnded(report *Report)
}
