package anticheat

import (
	"fmt"
	"log/slog"
)

// rateMargin is the multiplier applied to a game's max score rate before the
// rate check fires. Honest burst scoring (combo multipliers, end-of-level
// bonuses) routinely exceeds the nominal sustained rate, so the check
// triggers only at twice the cap.
const rateMargin = 2

// minRateElapsedSecs is the elapsed session time below which the rate check
// does not run. Early samples divide by a near-zero denominator: a single
// first catch a few hundred milliseconds in produces an absurd instantaneous
// rate that says nothing about sustained scoring.
const minRateElapsedSecs = 2.0

// DefaultGameThresholds is the built-in plausibility envelope for the
// shipped minigames. Config overrides merge on top of this at startup.
var DefaultGameThresholds = map[string]Threshold{
	"tokencatcher": {MaxScorePerSecond: 10, MaxTotalScore: 10_000},
	"coinrunner":   {MaxScorePerSecond: 25, MaxTotalScore: 50_000},
	"gemcrush":     {MaxScorePerSecond: 40, MaxTotalScore: 250_000},
	"lanedash":     {MaxScorePerSecond: 15, MaxTotalScore: 20_000},
	"chainwars":    {MaxScorePerSecond: 50, MaxTotalScore: 100_000},
}

// ScoreChecker validates score samples against per-game plausibility
// thresholds. Like the pattern detector it fails open: an internal fault
// logs and produces no flag.
type ScoreChecker struct {
	thresholds    map[string]Threshold
	allowNegative map[string]struct{} // games with sacrifice mechanics
	logger        *slog.Logger
}

// NewScoreChecker creates a score checker. Games absent from thresholds fall
// back to DefaultThreshold; games in negativeDeltaGames are exempt from the
// negative-delta check.
func NewScoreChecker(thresholds map[string]Threshold, negativeDeltaGames []string, logger *slog.Logger) *ScoreChecker {
	if logger == nil {
		logger = slog.Default()
	}
	if thresholds == nil {
		thresholds = DefaultGameThresholds
	}
	neg := make(map[string]struct{}, len(negativeDeltaGames))
	for _, id := range negativeDeltaGames {
		neg[id] = struct{}{}
	}
	return &ScoreChecker{
		thresholds:    thresholds,
		allowNegative: neg,
		logger:        logger,
	}
}

// ThresholdFor returns the plausibility envelope used for gameID.
func (c *ScoreChecker) ThresholdFor(gameID string) Threshold {
	if t, ok := c.thresholds[gameID]; ok {
		return t
	}
	return DefaultThreshold
}

// Inspect runs the three score checks against the newest sample. The checks
// are independent: one pathological sample can raise several flags at once.
// Caller holds the session lock and has already appended the sample.
func (c *ScoreChecker) Inspect(s *Session, sample ScoreSample) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("score checker fault, no flag produced",
				"session", s.ID, "game", s.GameID, "panic", fmt.Sprint(r))
		}
	}()

	th := c.ThresholdFor(s.GameID)

	if sample.Score > th.MaxTotalScore {
		s.addFlag(Flag{
			Type: FlagImpossibleScore,
			Time: sample.Time,
			Detail: map[string]float64{
				"score":         sample.Score,
				"maxTotalScore": th.MaxTotalScore,
			},
		})
	}

	if elapsed := float64(sample.Time-s.StartTime) / 1000; elapsed >= minRateElapsedSecs {
		rate := sample.Score / elapsed
		if rate > rateMargin*th.MaxScorePerSecond {
			s.addFlag(Flag{
				Type: FlagScoreRateTooHigh,
				Time: sample.Time,
				Detail: map[string]float64{
					"scorePerSecond":    rate,
					"maxScorePerSecond": th.MaxScorePerSecond,
					"margin":            rateMargin,
				},
			})
		}
	}

	if sample.Delta < 0 {
		if _, ok := c.allowNegative[s.GameID]; !ok {
			s.addFlag(Flag{
				Type: FlagNegativeScoreDelta,
				Time: sample.Time,
				Detail: map[string]float64{
					"delta": sample.Delta,
				},
			})
		}
	}
}
