package reminder

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medremind/medremind/internal/platform/push"
)

// blockingGateway parks SendBatch until released, so a scan can be held open
// mid-flight.
type blockingGateway struct {
	entered chan struct{}
	release chan struct{}
}

func (g *blockingGateway) SendBatch(_ context.Context, messages []push.Message) (*push.BatchResult, error) {
	close(g.entered)
	<-g.release
	return &push.BatchResult{SuccessCount: len(messages)}, nil
}

func newTestScanner(repo *mockRepo, gateway push.Gateway, tokens *mockTokenDirectory, interval time.Duration) *Scanner {
	logger := zerolog.New(os.Stderr)
	d, _ := newTestDispatcher(repo, gateway, tokens)
	svc := NewService(repo, &mockLogRepo{}, passthroughTx{}, DefaultConfig(), logger)
	svc.now = func() time.Time { return testNow }
	return NewScanner(d, svc, interval, logger)
}

func TestRunNow(t *testing.T) {
	repo := newMockRepo()
	patientID := uuid.New()
	due := seedReminder(repo, StatusPending, testNow.Add(3*time.Minute))
	due.PatientID = patientID
	overdue := seedReminder(repo, StatusSent, testNow.Add(-3*time.Hour))
	overdue.PatientID = patientID

	tokens := &mockTokenDirectory{tokens: map[uuid.UUID][]string{patientID: {"device-token-1"}}}
	s := newTestScanner(repo, &push.MockGateway{}, tokens, time.Minute)

	report, err := s.RunNow(context.Background())
	if err != nil {
		t.Fatalf("RunNow() error: %v", err)
	}
	if report.Dispatch.MarkedSent != 1 {
		t.Errorf("MarkedSent = %d, want 1", report.Dispatch.MarkedSent)
	}
	if report.Missed != 1 {
		t.Errorf("Missed = %d, want 1", report.Missed)
	}
	if repo.reminders[due.ID].Status != StatusSent {
		t.Errorf("due reminder status = %s, want sent", repo.reminders[due.ID].Status)
	}
	if repo.reminders[overdue.ID].Status != StatusMissed {
		t.Errorf("overdue reminder status = %s, want missed", repo.reminders[overdue.ID].Status)
	}
}

func TestRunNow_SweepsDespiteDispatchFailure(t *testing.T) {
	repo := newMockRepo()
	patientID := uuid.New()
	due := seedReminder(repo, StatusPending, testNow)
	due.PatientID = patientID
	overdue := seedReminder(repo, StatusSent, testNow.Add(-3*time.Hour))
	overdue.PatientID = patientID

	gateway := &push.MockGateway{}
	gateway.ShouldFail = true
	gateway.FailError = "connection refused"
	tokens := &mockTokenDirectory{tokens: map[uuid.UUID][]string{patientID: {"device-token-1"}}}
	s := newTestScanner(repo, gateway, tokens, time.Minute)

	report, err := s.RunNow(context.Background())
	if !errors.Is(err, ErrDeliveryTransport) {
		t.Fatalf("expected ErrDeliveryTransport, got %v", err)
	}
	if report == nil || report.Missed != 1 {
		t.Fatalf("report = %+v, want the sweep to run despite the gateway outage", report)
	}
	if repo.reminders[overdue.ID].Status != StatusMissed {
		t.Errorf("overdue reminder status = %s, want missed", repo.reminders[overdue.ID].Status)
	}
}

func TestRunNow_SingleFlight(t *testing.T) {
	repo := newMockRepo()
	patientID := uuid.New()
	due := seedReminder(repo, StatusPending, testNow)
	due.PatientID = patientID

	gateway := &blockingGateway{entered: make(chan struct{}), release: make(chan struct{})}
	tokens := &mockTokenDirectory{tokens: map[uuid.UUID][]string{patientID: {"device-token-1"}}}
	s := newTestScanner(repo, gateway, tokens, time.Minute)

	firstDone := make(chan error, 1)
	go func() {
		_, err := s.RunNow(context.Background())
		firstDone <- err
	}()

	<-gateway.entered
	if _, err := s.RunNow(context.Background()); !errors.Is(err, ErrScanInProgress) {
		t.Fatalf("expected ErrScanInProgress while scan in flight, got %v", err)
	}
	close(gateway.release)

	if err := <-firstDone; err != nil {
		t.Fatalf("first scan error: %v", err)
	}

	// Flag released; a fresh scan runs again.
	if _, err := s.RunNow(context.Background()); err != nil {
		t.Fatalf("scan after release error: %v", err)
	}
}

func TestScannerStartStop(t *testing.T) {
	repo := newMockRepo()
	s := newTestScanner(repo, &push.MockGateway{}, &mockTokenDirectory{}, 5*time.Millisecond)

	s.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	s.Stop()

	// Stop is idempotent.
	s.Stop()
}
