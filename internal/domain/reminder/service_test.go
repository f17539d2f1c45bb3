package reminder

import (
	"context"
	"errors"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medremind/medremind/internal/domain/prescription"
)

// mockRepo is an in-memory Repository honoring the same conditional update
// semantics as the Postgres implementation.
type mockRepo struct {
	reminders map[uuid.UUID]*Reminder
}

func newMockRepo() *mockRepo {
	return &mockRepo{reminders: make(map[uuid.UUID]*Reminder)}
}

func (m *mockRepo) InsertMany(_ context.Context, reminders []*Reminder) error {
	for _, r := range reminders {
		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}
		cp := *r
		m.reminders[r.ID] = &cp
	}
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Reminder, error) {
	r, ok := m.reminders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockRepo) ListByPatientAndRange(_ context.Context, patientID uuid.UUID, from, to time.Time) ([]*Reminder, error) {
	var out []*Reminder
	for _, r := range m.reminders {
		if r.PatientID == patientID && !r.ScheduledAt.Before(from) && r.ScheduledAt.Before(to) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (m *mockRepo) FindDue(_ context.Context, now time.Time, limit int) ([]*Reminder, error) {
	var out []*Reminder
	for _, r := range m.reminders {
		if r.Status == StatusPending && !r.NotifyAt.After(now) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NotifyAt.Before(out[j].NotifyAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockRepo) MarkSent(_ context.Context, ids []uuid.UUID, sentAt time.Time) (int64, error) {
	var n int64
	for _, id := range ids {
		r, ok := m.reminders[id]
		if ok && r.Status == StatusPending {
			r.Status = StatusSent
			at := sentAt
			r.SentAt = &at
			n++
		}
	}
	return n, nil
}

func statusAllowed(s Status, allowed []Status) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}

func (m *mockRepo) Transition(_ context.Context, id uuid.UUID, allowed []Status, to Status, actionAt time.Time) (bool, error) {
	r, ok := m.reminders[id]
	if !ok || !statusAllowed(r.Status, allowed) {
		return false, nil
	}
	r.Status = to
	at := actionAt
	r.ActionAt = &at
	return true, nil
}

func (m *mockRepo) Snooze(_ context.Context, id uuid.UUID, allowed []Status, notifyAt, snoozedUntil time.Time) (bool, error) {
	r, ok := m.reminders[id]
	if !ok || !statusAllowed(r.Status, allowed) {
		return false, nil
	}
	r.Status = StatusPending
	r.NotifyAt = notifyAt
	until := snoozedUntil
	r.SnoozedUntil = &until
	r.SnoozeCount++
	r.SentAt = nil
	return true, nil
}

func (m *mockRepo) SkipPendingByPrescription(_ context.Context, prescriptionID uuid.UUID, now time.Time) (int64, error) {
	var n int64
	for _, r := range m.reminders {
		open := r.Status == StatusPending || r.Status == StatusSent
		if r.PrescriptionID == prescriptionID && open && r.ScheduledAt.After(now) {
			r.Status = StatusSkipped
			at := now
			r.ActionAt = &at
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) SweepMissed(_ context.Context, cutoff, actionAt time.Time) ([]*Reminder, error) {
	var out []*Reminder
	for _, r := range m.reminders {
		if r.Status == StatusSent && r.ScheduledAt.Before(cutoff) {
			r.Status = StatusMissed
			at := actionAt
			r.ActionAt = &at
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepo) StatusCounts(_ context.Context, patientID uuid.UUID, from, to time.Time) (map[Status]int, error) {
	counts := make(map[Status]int)
	for _, r := range m.reminders {
		if r.PatientID == patientID && !r.ScheduledAt.Before(from) && r.ScheduledAt.Before(to) {
			counts[r.Status]++
		}
	}
	return counts, nil
}

// mockLogRepo collects action log entries.
type mockLogRepo struct {
	logs []*ActionLog
}

func (m *mockLogRepo) Insert(_ context.Context, log *ActionLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	m.logs = append(m.logs, log)
	return nil
}

func (m *mockLogRepo) InsertMany(ctx context.Context, logs []*ActionLog) error {
	for _, l := range logs {
		if err := m.Insert(ctx, l); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockLogRepo) ListByPatient(_ context.Context, patientID uuid.UUID, f LogFilter, limit, offset int) ([]*ActionLog, int, error) {
	var out []*ActionLog
	for _, l := range m.logs {
		if l.PatientID != patientID {
			continue
		}
		if f.Action != "" && l.Action != f.Action {
			continue
		}
		if f.From != nil && l.ActionAt.Before(*f.From) {
			continue
		}
		if f.To != nil && !l.ActionAt.Before(*f.To) {
			continue
		}
		out = append(out, l)
	}
	return out, len(out), nil
}

func (m *mockLogRepo) inWindow(l *ActionLog, patientID uuid.UUID, from, to time.Time) bool {
	if l.PatientID != patientID || l.Action == ActionSent {
		return false
	}
	return !l.ActionAt.Before(from) && l.ActionAt.Before(to)
}

func (m *mockLogRepo) ActionCounts(_ context.Context, patientID uuid.UUID, from, to time.Time) (map[Action]int, error) {
	counts := make(map[Action]int)
	for _, l := range m.logs {
		if m.inWindow(l, patientID, from, to) {
			counts[l.Action]++
		}
	}
	return counts, nil
}

func (m *mockLogRepo) DailyActionCounts(_ context.Context, patientID uuid.UUID, from, to time.Time) ([]DayCounts, error) {
	byDay := make(map[string]*DayCounts)
	for _, l := range m.logs {
		if !m.inWindow(l, patientID, from, to) {
			continue
		}
		day := l.ActionAt.UTC().Format("2006-01-02")
		d, ok := byDay[day]
		if !ok {
			d = &DayCounts{Day: day}
			byDay[day] = d
		}
		d.Total++
		switch l.Action {
		case ActionTaken:
			d.Taken++
		case ActionMissed:
			d.Missed++
		}
	}
	var out []DayCounts
	for _, d := range byDay {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
}

func (m *mockLogRepo) lastAction() Action {
	if len(m.logs) == 0 {
		return ""
	}
	return m.logs[len(m.logs)-1].Action
}

// passthroughTx runs the function without a real transaction.
type passthroughTx struct{}

func (passthroughTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestService() (*Service, *mockRepo, *mockLogRepo) {
	repo := newMockRepo()
	logs := &mockLogRepo{}
	svc := NewService(repo, logs, passthroughTx{}, DefaultConfig(), zerolog.New(os.Stderr))
	svc.now = func() time.Time { return testNow }
	return svc, repo, logs
}

func seedReminder(repo *mockRepo, status Status, scheduledAt time.Time) *Reminder {
	r := &Reminder{
		ID:             uuid.New(),
		PrescriptionID: uuid.New(),
		PatientID:      uuid.New(),
		MedicineName:   "Aspirin",
		Dosage:         "100mg",
		MealRelation:   prescription.AfterMeal,
		ScheduledAt:    scheduledAt,
		NotifyAt:       scheduledAt.Add(-5 * time.Minute),
		Status:         status,
	}
	repo.reminders[r.ID] = r
	return r
}

func TestGenerateForPrescription(t *testing.T) {
	svc, repo, _ := newTestService()

	p := &prescription.Prescription{
		ID:        uuid.New(),
		PatientID: uuid.New(),
		StartDate: testNow.AddDate(0, 0, 1),
		Medicines: []prescription.Medicine{
			{Name: "Aspirin", Dosage: "100mg", Timings: []prescription.Timing{
				{Time: "08:00"}, {Time: "20:00"},
			}, DurationDays: 3},
		},
	}

	count, err := svc.GenerateForPrescription(context.Background(), p)
	if err != nil {
		t.Fatalf("GenerateForPrescription() error: %v", err)
	}
	if count != 6 {
		t.Errorf("expected 6 reminders (2 timings x 3 days), got %d", count)
	}
	if len(repo.reminders) != 6 {
		t.Errorf("expected 6 stored reminders, got %d", len(repo.reminders))
	}
}

func TestGenerateForPrescription_Idempotent(t *testing.T) {
	svc, repo, _ := newTestService()

	p := &prescription.Prescription{
		ID:                 uuid.New(),
		PatientID:          uuid.New(),
		StartDate:          testNow.AddDate(0, 0, 1),
		RemindersGenerated: true,
		Medicines: []prescription.Medicine{
			{Name: "Aspirin", Dosage: "100mg", Timings: []prescription.Timing{{Time: "08:00"}}, DurationDays: 3},
		},
	}

	count, err := svc.GenerateForPrescription(context.Background(), p)
	if err != nil {
		t.Fatalf("GenerateForPrescription() error: %v", err)
	}
	if count != 0 || len(repo.reminders) != 0 {
		t.Errorf("already-generated prescription must not add reminders, got %d", count)
	}
}

func TestMarkTaken(t *testing.T) {
	svc, repo, logs := newTestService()
	r := seedReminder(repo, StatusSent, testNow.Add(-10*time.Minute))

	got, err := svc.MarkTaken(context.Background(), r.ID, "", nil)
	if err != nil {
		t.Fatalf("MarkTaken() error: %v", err)
	}
	if got.Status != StatusTaken {
		t.Errorf("expected taken, got %s", got.Status)
	}
	if logs.lastAction() != ActionTaken {
		t.Errorf("expected taken log entry, got %s", logs.lastAction())
	}
	last := logs.logs[len(logs.logs)-1]
	if last.DelayMinutes != 10 {
		t.Errorf("expected 10 minute delay, got %d", last.DelayMinutes)
	}
	if last.PrescriptionID != r.PrescriptionID || last.MedicineName != "Aspirin" || last.Dosage != "100mg" {
		t.Errorf("log entry must carry the medicine details, got %+v", last)
	}
}

func TestMarkTaken_AfterMissed(t *testing.T) {
	svc, repo, _ := newTestService()
	r := seedReminder(repo, StatusSent, testNow.Add(-10*time.Minute))

	if _, err := svc.MarkMissed(context.Background(), r.ID, ""); err != nil {
		t.Fatalf("MarkMissed() error: %v", err)
	}
	_, err := svc.MarkTaken(context.Background(), r.ID, "", nil)
	if !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}
}

func TestMarkTaken_AfterSkipped(t *testing.T) {
	svc, repo, _ := newTestService()
	r := seedReminder(repo, StatusSkipped, testNow.Add(-10*time.Minute))

	got, err := svc.MarkTaken(context.Background(), r.ID, "", nil)
	if err != nil {
		t.Fatalf("MarkTaken() error: %v", err)
	}
	if got.Status != StatusTaken {
		t.Errorf("a skipped dose can still be taken, got %s", got.Status)
	}
}

func TestMarkMissed_AfterTaken(t *testing.T) {
	svc, repo, _ := newTestService()
	r := seedReminder(repo, StatusPending, testNow.Add(-10*time.Minute))

	if _, err := svc.MarkTaken(context.Background(), r.ID, "", nil); err != nil {
		t.Fatalf("MarkTaken() error: %v", err)
	}
	_, err := svc.MarkMissed(context.Background(), r.ID, "")
	if !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}
}

func TestMarkTaken_NotFound(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.MarkTaken(context.Background(), uuid.New(), "", nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSnooze(t *testing.T) {
	svc, repo, logs := newTestService()
	r := seedReminder(repo, StatusSent, testNow.Add(-2*time.Minute))
	origSchedule := r.ScheduledAt

	got, err := svc.Snooze(context.Background(), r.ID, 0)
	if err != nil {
		t.Fatalf("Snooze() error: %v", err)
	}
	if !got.ScheduledAt.Equal(origSchedule) {
		t.Errorf("ScheduledAt = %v, the intake time must not move on snooze", got.ScheduledAt)
	}
	wantNotify := testNow.Add(15 * time.Minute)
	if !got.NotifyAt.Equal(wantNotify) {
		t.Errorf("NotifyAt = %v, want %v", got.NotifyAt, wantNotify)
	}
	if got.SnoozedUntil == nil || !got.SnoozedUntil.Equal(wantNotify) {
		t.Errorf("SnoozedUntil = %v, want %v", got.SnoozedUntil, wantNotify)
	}
	if got.Status != StatusPending {
		t.Errorf("snoozed reminder should return to pending, got %s", got.Status)
	}
	if got.SnoozeCount != 1 {
		t.Errorf("SnoozeCount = %d, want 1", got.SnoozeCount)
	}
	if logs.lastAction() != ActionSnoozed {
		t.Errorf("expected snoozed log entry, got %s", logs.lastAction())
	}
}

func TestSnooze_DelayKeepsOriginalSchedule(t *testing.T) {
	svc, repo, logs := newTestService()
	r := seedReminder(repo, StatusSent, testNow.Add(-30*time.Minute))

	if _, err := svc.Snooze(context.Background(), r.ID, 0); err != nil {
		t.Fatalf("Snooze() error: %v", err)
	}
	if _, err := svc.MarkTaken(context.Background(), r.ID, "", nil); err != nil {
		t.Fatalf("MarkTaken() error: %v", err)
	}
	last := logs.logs[len(logs.logs)-1]
	if last.DelayMinutes != 30 {
		t.Errorf("DelayMinutes = %d, want 30 measured from the original schedule", last.DelayMinutes)
	}
}

func TestSnooze_LimitExceeded(t *testing.T) {
	svc, repo, _ := newTestService()
	r := seedReminder(repo, StatusSent, testNow)

	for i := 0; i < 3; i++ {
		if _, err := svc.Snooze(context.Background(), r.ID, 0); err != nil {
			t.Fatalf("snooze %d error: %v", i+1, err)
		}
	}
	_, err := svc.Snooze(context.Background(), r.ID, 0)
	if !errors.Is(err, ErrSnoozeLimitExceeded) {
		t.Fatalf("expected ErrSnoozeLimitExceeded on 4th snooze, got %v", err)
	}
}

func TestSnooze_AfterCompleted(t *testing.T) {
	svc, repo, _ := newTestService()
	r := seedReminder(repo, StatusTaken, testNow)

	_, err := svc.Snooze(context.Background(), r.ID, 0)
	if !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}
}

func TestSweepMissed_Boundary(t *testing.T) {
	svc, repo, logs := newTestService()

	// 2h01m past schedule: swept. 1h59m: untouched.
	overdue := seedReminder(repo, StatusSent, testNow.Add(-2*time.Hour-time.Minute))
	fresh := seedReminder(repo, StatusSent, testNow.Add(-time.Hour-59*time.Minute))

	count, err := svc.SweepMissed(context.Background())
	if err != nil {
		t.Fatalf("SweepMissed() error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 swept reminder, got %d", count)
	}
	if repo.reminders[overdue.ID].Status != StatusMissed {
		t.Errorf("overdue reminder should be missed, got %s", repo.reminders[overdue.ID].Status)
	}
	if repo.reminders[fresh.ID].Status != StatusSent {
		t.Errorf("reminder inside the grace window must stay sent, got %s", repo.reminders[fresh.ID].Status)
	}
	if logs.lastAction() != ActionMissed {
		t.Errorf("expected missed log entry, got %s", logs.lastAction())
	}
}

func TestSweepMissed_IgnoresUnsent(t *testing.T) {
	svc, repo, _ := newTestService()

	// Overdue but never dispatched. The patient was not notified, so the
	// sweep must not charge them with a miss.
	undelivered := seedReminder(repo, StatusPending, testNow.Add(-3*time.Hour))

	count, err := svc.SweepMissed(context.Background())
	if err != nil {
		t.Fatalf("SweepMissed() error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no swept reminders, got %d", count)
	}
	if repo.reminders[undelivered.ID].Status != StatusPending {
		t.Errorf("undelivered reminder must stay pending, got %s", repo.reminders[undelivered.ID].Status)
	}
}

func TestSkipPendingForPrescription(t *testing.T) {
	svc, repo, logs := newTestService()
	prescriptionID := uuid.New()

	future := seedReminder(repo, StatusPending, testNow.Add(time.Hour))
	future.PrescriptionID = prescriptionID
	futureSent := seedReminder(repo, StatusSent, testNow.Add(2*time.Hour))
	futureSent.PrescriptionID = prescriptionID
	past := seedReminder(repo, StatusSent, testNow.Add(-time.Minute))
	past.PrescriptionID = prescriptionID
	done := seedReminder(repo, StatusTaken, testNow.Add(-time.Hour))
	done.PrescriptionID = prescriptionID

	count, err := svc.SkipPendingForPrescription(context.Background(), prescriptionID)
	if err != nil {
		t.Fatalf("SkipPendingForPrescription() error: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 skipped reminders, got %d", count)
	}
	if repo.reminders[past.ID].Status != StatusSent {
		t.Errorf("past occurrence must keep its outcome, got %s", repo.reminders[past.ID].Status)
	}
	if repo.reminders[done.ID].Status != StatusTaken {
		t.Errorf("terminal reminder must not be skipped, got %s", repo.reminders[done.ID].Status)
	}
	if len(logs.logs) != 0 {
		t.Errorf("bulk retirement must not write audit entries, got %d", len(logs.logs))
	}
}

func TestToday(t *testing.T) {
	svc, repo, _ := newTestService()
	patientID := uuid.New()

	today := seedReminder(repo, StatusPending, testNow.Add(2*time.Hour))
	today.PatientID = patientID
	tomorrow := seedReminder(repo, StatusPending, testNow.AddDate(0, 0, 1))
	tomorrow.PatientID = patientID

	got, err := svc.Today(context.Background(), patientID)
	if err != nil {
		t.Fatalf("Today() error: %v", err)
	}
	if len(got) != 1 || got[0].ID != today.ID {
		t.Errorf("expected only today's reminder, got %d", len(got))
	}
}

func TestRange_InvalidBounds(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.Range(context.Background(), uuid.New(), testNow, testNow.Add(-time.Hour))
	if err == nil {
		t.Fatal("expected error for inverted range")
	}
}

func TestDelayMinutes(t *testing.T) {
	sched := testNow
	tests := []struct {
		at   time.Time
		want int
	}{
		{sched.Add(10 * time.Minute), 10},
		{sched.Add(-5 * time.Minute), -5},
		{sched.Add(90 * time.Second), 2},
		{sched, 0},
	}
	for _, tt := range tests {
		if got := delayMinutes(sched, tt.at); got != tt.want {
			t.Errorf("delayMinutes(%v) = %d, want %d", tt.at.Sub(sched), got, tt.want)
		}
	}
}

func TestMarkTaken_RecordsLocation(t *testing.T) {
	svc, repo, logs := newTestService()
	r := seedReminder(repo, StatusSent, testNow.Add(-5*time.Minute))

	loc := &Location{Latitude: 52.52, Longitude: 13.405}
	if _, err := svc.MarkTaken(context.Background(), r.ID, "with breakfast", loc); err != nil {
		t.Fatalf("MarkTaken() error: %v", err)
	}
	last := logs.logs[len(logs.logs)-1]
	if last.Location == nil || last.Location.Latitude != 52.52 {
		t.Errorf("Location = %+v, want recorded GPS fix", last.Location)
	}
	if last.Note != "with breakfast" {
		t.Errorf("Note = %q, want passed through", last.Note)
	}
}

func TestSnooze_CustomMinutes(t *testing.T) {
	svc, repo, _ := newTestService()
	r := seedReminder(repo, StatusSent, testNow)

	got, err := svc.Snooze(context.Background(), r.ID, 30)
	if err != nil {
		t.Fatalf("Snooze() error: %v", err)
	}
	if want := testNow.Add(30 * time.Minute); !got.NotifyAt.Equal(want) {
		t.Errorf("NotifyAt = %v, want %v", got.NotifyAt, want)
	}
	if !got.ScheduledAt.Equal(testNow) {
		t.Errorf("ScheduledAt = %v, the intake time must not move on snooze", got.ScheduledAt)
	}
}

func TestUpcoming(t *testing.T) {
	svc, repo, _ := newTestService()
	patientID := uuid.New()

	soon := seedReminder(repo, StatusPending, testNow.Add(2*time.Hour))
	soon.PatientID = patientID
	done := seedReminder(repo, StatusTaken, testNow.Add(3*time.Hour))
	done.PatientID = patientID
	far := seedReminder(repo, StatusPending, testNow.Add(30*time.Hour))
	far.PatientID = patientID

	got, err := svc.Upcoming(context.Background(), patientID, 0)
	if err != nil {
		t.Fatalf("Upcoming() error: %v", err)
	}
	if len(got) != 1 || got[0].ID != soon.ID {
		t.Errorf("expected only the open reminder within 24h, got %d", len(got))
	}
}

func TestSummary(t *testing.T) {
	svc, repo, _ := newTestService()
	patientID := uuid.New()

	for _, status := range []Status{StatusPending, StatusSent, StatusTaken, StatusTaken, StatusMissed} {
		r := seedReminder(repo, status, testNow.Add(time.Hour))
		r.PatientID = patientID
	}
	seedReminder(repo, StatusPending, testNow.AddDate(0, 0, 2)).PatientID = patientID

	sum, err := svc.Summary(context.Background(), patientID)
	if err != nil {
		t.Fatalf("Summary() error: %v", err)
	}
	if sum.Total != 5 {
		t.Errorf("Total = %d, want 5 (tomorrow excluded)", sum.Total)
	}
	if sum.Taken != 2 || sum.Pending != 1 || sum.Sent != 1 || sum.Missed != 1 {
		t.Errorf("summary = %+v, want 1/1/2/1 pending/sent/taken/missed", sum)
	}
	if sum.Date != "2025-03-10" {
		t.Errorf("Date = %q, want 2025-03-10", sum.Date)
	}
}

func TestHistory_Filter(t *testing.T) {
	svc, repo, _ := newTestService()
	patientID := uuid.New()

	taken := seedReminder(repo, StatusSent, testNow.Add(-time.Hour))
	taken.PatientID = patientID
	missed := seedReminder(repo, StatusSent, testNow.Add(-time.Hour))
	missed.PatientID = patientID

	if _, err := svc.MarkTaken(context.Background(), taken.ID, "", nil); err != nil {
		t.Fatalf("MarkTaken() error: %v", err)
	}
	if _, err := svc.MarkMissed(context.Background(), missed.ID, ""); err != nil {
		t.Fatalf("MarkMissed() error: %v", err)
	}

	got, total, err := svc.History(context.Background(), patientID, LogFilter{Action: ActionTaken}, 10, 0)
	if err != nil {
		t.Fatalf("History() error: %v", err)
	}
	if total != 1 || len(got) != 1 || got[0].Action != ActionTaken {
		t.Errorf("expected only the taken entry, got %d entries", len(got))
	}
}
