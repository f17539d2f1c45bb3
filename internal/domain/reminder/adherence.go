package reminder

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Period is a rolling adherence reporting window.
type Period string

const (
	PeriodWeek    Period = "week"
	PeriodMonth   Period = "month"
	PeriodQuarter Period = "quarter"
)

// Days returns the window length of the period.
func (p Period) Days() (int, error) {
	switch p {
	case PeriodWeek:
		return 7, nil
	case PeriodMonth:
		return 30, nil
	case PeriodQuarter:
		return 90, nil
	default:
		return 0, fmt.Errorf("invalid period %q: want week, month, or quarter", p)
	}
}

// AdherenceReport summarises how well a patient followed their schedule
// within a window. It is computed from the action log, so only doses the
// patient (or the sweep) resolved count; occurrences still awaiting action
// do not dilute the rate. AdherenceRate is the percentage of logged actions
// that are taken, rounded to the nearest integer; a window with no actions
// reports 0.
type AdherenceReport struct {
	Period        Period      `json:"period"`
	From          time.Time   `json:"from"`
	To            time.Time   `json:"to"`
	Total         int         `json:"total"`
	Taken         int         `json:"taken"`
	Missed        int         `json:"missed"`
	Skipped       int         `json:"skipped"`
	Snoozed       int         `json:"snoozed"`
	AdherenceRate int         `json:"adherence_rate"`
	Daily         []DayCounts `json:"daily"`
}

// adherenceRate computes round(taken/total*100), guarding the empty window.
func adherenceRate(taken, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(taken) / float64(total) * 100))
}

// Adherence builds the adherence report for the given rolling period ending
// now. Dispatch bookkeeping (sent entries) is excluded from the totals.
func (s *Service) Adherence(ctx context.Context, patientID uuid.UUID, period Period) (*AdherenceReport, error) {
	days, err := period.Days()
	if err != nil {
		return nil, err
	}

	to := s.now()
	from := to.AddDate(0, 0, -days)

	counts, err := s.logs.ActionCounts(ctx, patientID, from, to)
	if err != nil {
		return nil, err
	}
	daily, err := s.logs.DailyActionCounts(ctx, patientID, from, to)
	if err != nil {
		return nil, err
	}

	report := &AdherenceReport{
		Period:  period,
		From:    from,
		To:      to,
		Taken:   counts[ActionTaken],
		Missed:  counts[ActionMissed],
		Skipped: counts[ActionSkipped],
		Snoozed: counts[ActionSnoozed],
		Daily:   daily,
	}
	report.Total = report.Taken + report.Missed + report.Skipped + report.Snoozed
	report.AdherenceRate = adherenceRate(report.Taken, report.Total)
	return report, nil
}
