package anticheat

import (
	"testing"
)

var testThresholds = map[string]Threshold{
	"tokencatcher": {MaxScorePerSecond: 10, MaxTotalScore: 1000},
	"chainwars":    {MaxScorePerSecond: 50, MaxTotalScore: 100000},
}

func TestImpossibleScoreStrictBoundary(t *testing.T) {
	rec, clock := newTestRecorder(WithThresholds(testThresholds))
	id, _ := rec.StartSession("tokencatcher")

	// Long enough that the max total does not trip the rate check too.
	clock.advance(200_000)

	rec.RecordScore(id, 1000, 1000)
	flags, _ := rec.SessionFlags(id)
	if got := countFlags(flags, FlagImpossibleScore); got != 0 {
		t.Errorf("score equal to the cap must not flag, got %d", got)
	}

	rec.RecordScore(id, 1001, 1)
	flags, _ = rec.SessionFlags(id)
	if got := countFlags(flags, FlagImpossibleScore); got != 1 {
		t.Errorf("score above the cap must flag, got %d", got)
	}
}

func TestScoreRateRequiresDoubleMargin(t *testing.T) {
	rec, clock := newTestRecorder(WithThresholds(testThresholds))
	id, _ := rec.StartSession("tokencatcher")

	clock.advance(10_000) // 10s elapsed, cap is 10/s, flag trips above 20/s

	rec.RecordScore(id, 150, 150) // 15/s: hot but within the margin
	flags, _ := rec.SessionFlags(id)
	if got := countFlags(flags, FlagScoreRateTooHigh); got != 0 {
		t.Errorf("rate within 2x margin flagged %d times", got)
	}

	rec.RecordScore(id, 250, 100) // 25/s: over twice the cap
	flags, _ = rec.SessionFlags(id)
	if got := countFlags(flags, FlagScoreRateTooHigh); got != 1 {
		t.Errorf("rate above 2x margin should flag once, got %d", got)
	}
}

func TestScoreRateSkippedAtZeroElapsed(t *testing.T) {
	rec, _ := newTestRecorder(WithThresholds(testThresholds))
	id, _ := rec.StartSession("tokencatcher")

	// Sample in the same millisecond as the session start: no elapsed
	// time, no defined rate.
	rec.RecordScore(id, 5, 5)
	flags, _ := rec.SessionFlags(id)
	if got := countFlags(flags, FlagScoreRateTooHigh); got != 0 {
		t.Errorf("zero-elapsed sample flagged %d times", got)
	}
}

func TestScoreRateSkippedEarlyInSession(t *testing.T) {
	rec, clock := newTestRecorder(WithThresholds(testThresholds))
	id, _ := rec.StartSession("tokencatcher")

	// 15 points 700ms in is 21.4/s instantaneous, over twice the 10/s cap,
	// but the denominator is too small to mean anything yet.
	clock.advance(700)
	rec.RecordScore(id, 15, 15)
	flags, _ := rec.SessionFlags(id)
	if got := countFlags(flags, FlagScoreRateTooHigh); got != 0 {
		t.Errorf("early sample flagged %d times", got)
	}

	// The same sustained rate past the floor does flag.
	clock.advance(9_300)
	rec.RecordScore(id, 300, 285)
	flags, _ = rec.SessionFlags(id)
	if got := countFlags(flags, FlagScoreRateTooHigh); got != 1 {
		t.Errorf("sustained 30/s should flag once, got %d", got)
	}
}

func TestNegativeDeltaFlagged(t *testing.T) {
	rec, clock := newTestRecorder(
		WithThresholds(testThresholds),
		WithNegativeDeltaGames([]string{"chainwars"}),
	)
	id, _ := rec.StartSession("tokencatcher")

	clock.advance(30_000)
	rec.RecordScore(id, 100, 100)
	rec.RecordScore(id, 95, -5)

	flags, _ := rec.SessionFlags(id)
	if got := countFlags(flags, FlagNegativeScoreDelta); got != 1 {
		t.Errorf("negative delta should flag once, got %d", got)
	}
}

func TestNegativeDeltaAllowedForSacrificeGames(t *testing.T) {
	rec, clock := newTestRecorder(
		WithThresholds(testThresholds),
		WithNegativeDeltaGames([]string{"chainwars"}),
	)
	id, _ := rec.StartSession("chainwars")

	clock.advance(30_000)
	rec.RecordScore(id, 100, 100)
	rec.RecordScore(id, 60, -40) // sacrificed a chain

	flags, _ := rec.SessionFlags(id)
	if len(flags) != 0 {
		t.Errorf("sacrifice-mechanics game flagged: %+v", flags)
	}
}

func TestUnknownGameFallsBackToGenericThreshold(t *testing.T) {
	rec, clock := newTestRecorder(WithThresholds(testThresholds))
	id, _ := rec.StartSession("gemcrush") // whitelisted, no threshold entry

	clock.advance(20_000_000) // slow enough for any rate

	rec.RecordScore(id, DefaultThreshold.MaxTotalScore, 1)
	flags, _ := rec.SessionFlags(id)
	if len(flags) != 0 {
		t.Errorf("score at the generic cap flagged: %+v", flags)
	}

	rec.RecordScore(id, DefaultThreshold.MaxTotalScore+1, 1)
	flags, _ = rec.SessionFlags(id)
	if got := countFlags(flags, FlagImpossibleScore); got != 1 {
		t.Errorf("score above the generic cap should flag once, got %d", got)
	}
}

func TestOneSampleCanRaiseMultipleFlags(t *testing.T) {
	rec, clock := newTestRecorder(WithThresholds(testThresholds))
	id, _ := rec.StartSession("tokencatcher")

	clock.advance(10_000)
	rec.RecordScore(id, 5000, -1) // impossible total, absurd rate, negative delta

	flags, _ := rec.SessionFlags(id)
	if countFlags(flags, FlagImpossibleScore) != 1 ||
		countFlags(flags, FlagScoreRateTooHigh) != 1 ||
		countFlags(flags, FlagNegativeScoreDelta) != 1 {
		t.Errorf("expected all three score flags, got %+v", flags)
	}
}
