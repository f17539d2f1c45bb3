package reminder

import (
	"fmt"
	"sort"
	"time"

	"github.com/medremind/medremind/internal/domain/prescription"
)

// Expand turns a prescription into the full set of reminders it implies: one
// per medicine, per day of that medicine's duration, per timing. Occurrences
// whose scheduled time is not after now are dropped, so a prescription
// created mid-course only yields future reminders. NotifyAt is set lead
// ahead of each scheduled time.
//
// The result is sorted by scheduled time. Expansion is pure; it does not
// touch storage.
func Expand(p *prescription.Prescription, now time.Time, lead time.Duration) ([]*Reminder, error) {
	startDay := time.Date(
		p.StartDate.Year(), p.StartDate.Month(), p.StartDate.Day(),
		0, 0, 0, 0, time.UTC)

	var reminders []*Reminder
	for _, med := range p.Medicines {
		for d := 0; d < med.DurationDays; d++ {
			day := startDay.AddDate(0, 0, d)
			for _, timing := range med.Timings {
				at, err := timing.Time.At(day)
				if err != nil {
					return nil, fmt.Errorf("medicine %s: %w", med.Name, err)
				}
				if !at.After(now) {
					continue
				}
				reminders = append(reminders, &Reminder{
					PrescriptionID: p.ID,
					PatientID:      p.PatientID,
					MedicineName:   med.Name,
					Dosage:         med.Dosage,
					MealRelation:   timing.MealRelation,
					ScheduledAt:    at,
					NotifyAt:       at.Add(-lead),
					Status:         StatusPending,
				})
			}
		}
	}

	sort.Slice(reminders, func(i, j int) bool {
		return reminders[i].ScheduledAt.Before(reminders[j].ScheduledAt)
	})
	return reminders, nil
}
