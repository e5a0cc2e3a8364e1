package reconciliation

import (
	"time"

	"github.com/pkg/errors"
)

// TrustPolicy drives trust score changes on payment.
type TrustPolicy struct {
	OnTimeBonus  int
	StreakLength int
	StreakBonus  int
	Min          int
	Max          int
}

func DefaultTrustPolicy() TrustPolicy {
	return TrustPolicy{
		OnTimeBonus:  2,
		StreakLength: 12,
		StreakBonus:  10,
		Min:          0,
		Max:          100,
	}
}

func (p TrustPolicy) Validate() error {
	if p.StreakLength < 1 {
		return errors.Errorf("streak_length must be positive, got %d", p.StreakLength)
	}
	if p.OnTimeBonus < 0 || p.StreakBonus < 0 {
		return errors.New("bonuses must not be negative")
	}
	if p.Min > p.Max {
		return errors.Errorf("min %d above max %d", p.Min, p.Max)
	}
	return nil
}

// Apply returns the tenant's new score and streak after one payment and the
// score delta actually applied after clamping.
//
// An on-time payment earns OnTimeBonus and extends the streak; completing a
// streak earns StreakBonus once and starts a new one. A late payment resets
// the streak and leaves the score alone.
func (p TrustPolicy) Apply(score, streak int, onTime bool) (newScore, newStreak, delta int) {
	if !onTime {
		return score, 0, 0
	}
	bonus := p.OnTimeBonus
	newStreak = streak + 1
	if newStreak >= p.StreakLength {
		bonus += p.StreakBonus
		newStreak = 0
	}
	newScore = p.clamp(score + bonus)
	return newScore, newStreak, newScore - score
}

func (p TrustPolicy) clamp(v int) int {
	if v < p.Min {
		return p.Min
	}
	if v > p.Max {
		return p.Max
	}
	return v
}

// paidOnTime compares calendar days, so a payment on the due date counts.
func paidOnTime(paidAt, dueDate time.Time) bool {
	return !day(paidAt).After(day(dueDate))
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
