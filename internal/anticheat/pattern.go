package anticheat

import (
	"fmt"
	"log/slog"
)

// Cadence and repetition rule parameters.
const (
	inhumanDeltaMs    = 50 // sustained cadence below this is not human
	inhumanMinActions = 5  // speed rule arms only past this many actions
	inhumanWindow     = 10 // actions averaged, and re-fire suppression span
	patternWindow     = 20 // actions compared by the repetition rule
	patternPeriod     = 10 // loop period the repetition rule can see
)

// PatternDetector inspects a session's rolling action window for bot-like
// input. It never returns errors and never panics out: any internal fault
// degrades to "no flag" with a diagnostic log line. Anti-cheat fails open
// with respect to gameplay.
type PatternDetector struct {
	logger *slog.Logger
}

// NewPatternDetector creates an action-cadence detector.
func NewPatternDetector(logger *slog.Logger) *PatternDetector {
	if logger == nil {
		logger = slog.Default()
	}
	return &PatternDetector{logger: logger}
}

// Inspect evaluates the newest event against the session's recent action
// history and appends zero or more flags. Caller holds the session lock and
// has already appended newEvent to the log.
func (d *PatternDetector) Inspect(s *Session, newEvent ActionEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("pattern detector fault, no flag produced",
				"session", s.ID, "game", s.GameID, "panic", fmt.Sprint(r))
		}
	}()

	d.checkInhumanSpeed(s, newEvent)
	d.checkRepetition(s)
}

// checkInhumanSpeed flags a sustained sub-50ms cadence. One fast delta is a
// double-tap; the flag requires the mean delta of the last ten actions to
// also be under 50ms. Re-fires at most once per ten actions so a scripted
// session accumulates evidence sublinearly instead of one flag per input.
func (d *PatternDetector) checkInhumanSpeed(s *Session, newEvent ActionEvent) {
	if newEvent.Delta >= inhumanDeltaMs || len(s.Actions) <= inhumanMinActions {
		return
	}
	if s.lastSpeedFlagAt >= 0 && s.actionTotal-s.lastSpeedFlagAt < inhumanWindow {
		return
	}

	window := s.Actions
	if len(window) > inhumanWindow {
		window = window[len(window)-inhumanWindow:]
	}
	var sum int64
	for _, ev := range window {
		sum += ev.Delta
	}
	mean := float64(sum) / float64(len(window))
	if mean >= inhumanDeltaMs {
		return
	}

	s.lastSpeedFlagAt = s.actionTotal
	s.addFlag(Flag{
		Type: FlagInhumanSpeed,
		Time: newEvent.Time,
		Detail: map[string]float64{
			"avgDeltaMs":  mean,
			"thresholdMs": inhumanDeltaMs,
			"window":      float64(len(window)),
		},
	})
}

// checkRepetition flags a 20-action window that is literally two copies of
// its own first ten elements back-to-back, the signature of a trivial
// macro loop. A macro with period above ten evades this check; that
// limitation is accepted rather than papered over with a heavier matcher.
func (d *PatternDetector) checkRepetition(s *Session) {
	if len(s.Actions) < patternWindow {
		return
	}
	if s.lastPatternFlagAt >= 0 && s.actionTotal-s.lastPatternFlagAt < patternWindow {
		return
	}

	window := s.Actions[len(s.Actions)-patternWindow:]
	for i := 0; i < patternPeriod; i++ {
		if window[i].Type != window[i+patternPeriod].Type {
			return
		}
	}

	s.lastPatternFlagAt = s.actionTotal
	s.addFlag(Flag{
		Type: FlagRepetitivePattern,
		Time: window[patternWindow-1].Time,
		Detail: map[string]float64{
			"windowSize": patternWindow,
			"period":     patternPeriod,
		},
	})
}
