package prescription

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a prescription.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusPaused    Status = "paused"
)

var validStatuses = map[Status]bool{
	StatusActive: true, StatusCompleted: true, StatusCancelled: true,
	StatusPaused: true,
}

// MealRelation describes when a medicine should be taken relative to food.
type MealRelation string

const (
	BeforeMeal   MealRelation = "before_meal"
	AfterMeal    MealRelation = "after_meal"
	WithMeal     MealRelation = "with_meal"
	EmptyStomach MealRelation = "empty_stomach"
	AnyTime      MealRelation = "anytime"
)

var validMealRelations = map[MealRelation]bool{
	BeforeMeal: true, AfterMeal: true, WithMeal: true, EmptyStomach: true, AnyTime: true,
}

// Suffix returns the human-readable qualifier appended to reminder messages,
// e.g. " (before meal)". AnyTime yields no suffix.
func (m MealRelation) Suffix() string {
	switch m {
	case BeforeMeal:
		return " (before meal)"
	case AfterMeal:
		return " (after meal)"
	case WithMeal:
		return " (with meal)"
	case EmptyStomach:
		return " (on empty stomach)"
	default:
		return ""
	}
}

// TimeOfDay is a time of day in 24h "HH:MM" form, e.g. "08:00".
type TimeOfDay string

// Clock parses the time into hour and minute components.
func (t TimeOfDay) Clock() (hour, minute int, err error) {
	parts := strings.SplitN(string(t), ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid timing %q: want HH:MM", t)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid timing %q: hour out of range", t)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid timing %q: minute out of range", t)
	}
	return hour, minute, nil
}

// At anchors the time on the given calendar day in UTC.
func (t TimeOfDay) At(day time.Time) (time.Time, error) {
	hour, minute, err := t.Clock()
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, time.UTC), nil
}

// Timing is one dose slot of a medicine: a time of day plus its meal
// relation. A medicine taken before breakfast and after dinner carries two
// timings with different relations.
type Timing struct {
	Time         TimeOfDay    `json:"time"`
	MealRelation MealRelation `json:"meal_relation"`
}

// Validate checks the timing and defaults an empty meal relation to anytime.
func (t *Timing) Validate() error {
	if _, _, err := t.Time.Clock(); err != nil {
		return err
	}
	if t.MealRelation == "" {
		t.MealRelation = AnyTime
	}
	if !validMealRelations[t.MealRelation] {
		return fmt.Errorf("invalid meal_relation %q", t.MealRelation)
	}
	return nil
}

// Medicine is a single drug within a prescription, with its dose schedule.
type Medicine struct {
	Name         string   `json:"name"`
	Dosage       string   `json:"dosage"`
	Timings      []Timing `json:"timings"`
	DurationDays int      `json:"duration_days"`
	Instructions string   `json:"instructions,omitempty"`
}

// Validate checks a medicine's fields.
func (m *Medicine) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("medicine name is required")
	}
	if m.Dosage == "" {
		return fmt.Errorf("medicine %s: dosage is required", m.Name)
	}
	if len(m.Timings) == 0 {
		return fmt.Errorf("medicine %s: at least one timing is required", m.Name)
	}
	for i := range m.Timings {
		if err := m.Timings[i].Validate(); err != nil {
			return fmt.Errorf("medicine %s: %w", m.Name, err)
		}
	}
	if m.DurationDays <= 0 {
		return fmt.Errorf("medicine %s: duration_days must be positive", m.Name)
	}
	return nil
}

// Prescription is a doctor's order for one or more medicines. EndDate is
// derived from StartDate plus the longest medicine duration.
type Prescription struct {
	ID                 uuid.UUID  `json:"id"`
	RxNumber           string     `json:"rx_number"`
	PatientID          uuid.UUID  `json:"patient_id"`
	PrescribedBy       string     `json:"prescribed_by,omitempty"`
	Diagnosis          string     `json:"diagnosis,omitempty"`
	Status             Status     `json:"status"`
	StartDate          time.Time  `json:"start_date"`
	EndDate            time.Time  `json:"end_date"`
	Medicines          []Medicine `json:"medicines"`
	RemindersGenerated bool       `json:"reminders_generated"`
	Notes              string     `json:"notes,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// MaxDurationDays returns the longest medicine duration in the prescription.
func (p *Prescription) MaxDurationDays() int {
	max := 0
	for _, m := range p.Medicines {
		if m.DurationDays > max {
			max = m.DurationDays
		}
	}
	return max
}
