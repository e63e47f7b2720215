package anticheat

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/playguard/playguard/internal/retry"
)

// Caps on the opaque per-action payload. Oversized payloads are trimmed, not
// rejected: the payload is advisory context, never worth failing a recording
// call over.
const (
	maxPayloadKeys     = 16
	maxPayloadValueLen = 256
)

const storeWriteTimeout = 10 * time.Second

// Recorder is the façade the rest of the service talks to. It owns session
// lifecycle, routes every recorded event through the detectors, and collapses
// ended sessions into hashed reports.
//
// Recording methods report whether the session existed via their bool
// return; a stale session ID is a normal occurrence (swept, double-ended, or
// fabricated) and is answered with a no-op rather than an error.
type Recorder struct {
	registry *Registry
	patterns *PatternDetector
	scores   *ScoreChecker
	hasher   *Hasher
	store    Store
	emitter  FlagEmitter
	logger   *slog.Logger

	thresholds         map[string]Threshold
	negativeDeltaGames []string

	// now returns wall-clock ms. Swapped in tests for determinism.
	now func() int64
}

// RecorderOption customizes a Recorder.
type RecorderOption func(*Recorder)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithStore enables best-effort report persistence.
func WithStore(store Store) RecorderOption {
	return func(r *Recorder) { r.store = store }
}

// WithEmitter enables lifecycle event emission.
func WithEmitter(emitter FlagEmitter) RecorderOption {
	return func(r *Recorder) { r.emitter = emitter }
}

// WithHasher overrides the integrity hasher.
func WithHasher(h *Hasher) RecorderOption {
	return func(r *Recorder) {
		if h != nil {
			r.hasher = h
		}
	}
}

// WithThresholds overrides the per-game score plausibility envelopes.
func WithThresholds(thresholds map[string]Threshold) RecorderOption {
	return func(r *Recorder) {
		if thresholds != nil {
			r.thresholds = thresholds
		}
	}
}

// WithNegativeDeltaGames names the games whose score may legitimately drop.
func WithNegativeDeltaGames(games []string) RecorderOption {
	return func(r *Recorder) { r.negativeDeltaGames = games }
}

// NewRecorder creates a Recorder over the given session registry.
func NewRecorder(registry *Registry, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		registry:   registry,
		logger:     slog.Default(),
		thresholds: DefaultGameThresholds,
		now:        func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.hasher == nil {
		r.hasher = NewHasher(DefaultSignal())
	}
	r.patterns = NewPatternDetector(r.logger)
	r.scores = NewScoreChecker(r.thresholds, r.negativeDeltaGames, r.logger)
	return r
}

// StartSession begins tracking a play-through of gameID and returns the new
// session ID. Returns ErrUnknownGame for games off the whitelist.
func (r *Recorder) StartSession(gameID string) (string, error) {
	s, err := r.registry.Create(gameID, r.now())
	if err != nil {
		return "", err
	}

	sessionsStarted.WithLabelValues(gameID).Inc()
	if r.emitter != nil {
		r.emitter.EmitSessionStarted(s.ID, gameID)
	}
	r.logger.Info("session started", "session", s.ID, "game", gameID)
	return s.ID, nil
}

// RecordAction appends one input event to the session's action log and runs
// pattern detection over the updated window. Reports false if the session
// does not exist.
func (r *Recorder) RecordAction(sessionID, actionType string, data map[string]string) bool {
	s := r.registry.Get(sessionID)
	if s == nil {
		return false
	}

	s.mu.Lock()
	now := r.now()
	var delta int64
	if s.LastActionTime > 0 {
		delta = now - s.LastActionTime
		if delta < 0 {
			// Wall clock stepped backwards; a negative gap is meaningless.
			delta = 0
		}
	}

	ev := ActionEvent{
		Type:  actionType,
		Time:  now,
		Delta: delta,
		Data:  trimPayload(data),
	}
	s.Actions = append(s.Actions, ev)
	s.actionTotal++
	s.LastActionTime = now

	if len(s.Actions) > maxActionLog {
		kept := make([]ActionEvent, keepActionLog)
		copy(kept, s.Actions[len(s.Actions)-keepActionLog:])
		s.Actions = kept
		actionLogTruncations.Inc()
	}

	flagged := len(s.Flags)
	r.patterns.Inspect(s, ev)
	raised := copyFlags(s.Flags[flagged:])
	s.mu.Unlock()

	r.publishFlags(s, raised)
	return true
}

// RecordScore appends one score checkpoint and runs the plausibility checks.
// Reports false if the session does not exist.
func (r *Recorder) RecordScore(sessionID string, score, delta float64) bool {
	s := r.registry.Get(sessionID)
	if s == nil {
		return false
	}

	s.mu.Lock()
	sample := ScoreSample{Score: score, Delta: delta, Time: r.now()}
	s.Scores = append(s.Scores, sample)

	flagged := len(s.Flags)
	r.scores.Inspect(s, sample)
	raised := copyFlags(s.Flags[flagged:])
	s.mu.Unlock()

	r.publishFlags(s, raised)
	return true
}

// EndSession finalizes the session into an immutable hashed report, removes
// it from the registry, and (when a store is configured) persists the report
// best-effort in the background. finalScore is the caller's authoritative
// final score and lands on the report as-is; when it disagrees with the last
// recorded sample the mismatch is logged as extra evidence for the
// adjudicator. Returns nil if the session does not exist; ending twice
// yields one report and one nil.
func (r *Recorder) EndSession(sessionID string, finalScore float64) *Report {
	s := r.registry.Take(sessionID)
	if s == nil {
		return nil
	}

	s.mu.Lock()
	end := r.now()
	lastSample, haveSample := 0.0, false
	if n := len(s.Scores); n > 0 {
		lastSample, haveSample = s.Scores[n-1].Score, true
	}
	report := &Report{
		ID:          s.ID,
		GameID:      s.GameID,
		StartTime:   s.StartTime,
		EndTime:     end,
		DurationMs:  end - s.StartTime,
		FinalScore:  finalScore,
		ActionCount: s.actionTotal,
		Flags:       copyFlags(s.Flags),
		Valid:       len(s.Flags) == 0,
	}
	s.mu.Unlock()

	if haveSample && lastSample != finalScore {
		r.logger.Warn("final score disagrees with last sample",
			"session", report.ID,
			"game", report.GameID,
			"finalScore", finalScore,
			"lastSample", lastSample)
	}

	report.Hash = r.hasher.ReportHash(report)

	sessionsEnded.WithLabelValues(strconv.FormatBool(report.Valid)).Inc()
	sessionDuration.Observe(float64(report.DurationMs) / 1000)

	if r.store != nil {
		go r.persist(report)
	}
	if r.emitter != nil {
		r.emitter.EmitSessionEnded(report)
	}
	r.logger.Info("session ended",
		"session", report.ID,
		"game", report.GameID,
		"valid", report.Valid,
		"flags", len(report.Flags),
		"actions", report.ActionCount,
		"durationMs", report.DurationMs)
	return report
}

// IsSessionValid reports whether the live session has accumulated no flags.
// ok is false when the session does not exist.
func (r *Recorder) IsSessionValid(sessionID string) (valid, ok bool) {
	s := r.registry.Get(sessionID)
	if s == nil {
		return false, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Flags) == 0, true
}

// SessionFlags returns a copy of the live session's flags. ok is false when
// the session does not exist.
func (r *Recorder) SessionFlags(sessionID string) (flags []Flag, ok bool) {
	s := r.registry.Get(sessionID)
	if s == nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyFlags(s.Flags), true
}

// publishFlags logs and emits freshly raised flags outside the session lock.
func (r *Recorder) publishFlags(s *Session, raised []Flag) {
	for _, f := range raised {
		r.logger.Warn("anomaly flag raised",
			"session", s.ID, "game", s.GameID, "type", string(f.Type))
		if r.emitter != nil {
			r.emitter.EmitFlagRaised(s.ID, s.GameID, f)
		}
	}
}

// persist writes the report with a detached context so an in-flight HTTP
// request's cancellation cannot lose it. Transient store errors are retried
// with backoff; a final failure is counted and logged, and the report was
// already returned to the caller.
func (r *Recorder) persist(report *Report) {
	ctx, cancel := context.WithTimeout(context.Background(), storeWriteTimeout)
	defer cancel()
	err := retry.Do(ctx, 3, 200*time.Millisecond, func() error {
		return r.store.Record(ctx, report)
	})
	if err != nil {
		reportStoreErrors.Inc()
		r.logger.Error("report persistence failed", "report", report.ID, "error", err)
	}
}

func copyFlags(flags []Flag) []Flag {
	out := make([]Flag, len(flags))
	copy(out, flags)
	return out
}

// trimPayload deep-copies the action payload, dropping keys beyond the cap
// and truncating oversized values.
func trimPayload(data map[string]string) map[string]string {
	if len(data) == 0 {
		return nil
	}
	out := make(map[string]string, min(len(data), maxPayloadKeys))
	for k, v := range data {
		if len(out) >= maxPayloadKeys {
			break
		}
		if len(v) > maxPayloadValueLen {
			v = v[:maxPayloadValueLen]
		}
		out[k] = v
	}
	return out
}
