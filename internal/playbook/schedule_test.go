package playbook_test

import (
	"testing"
	"time"

	"github.com/griphq/retention-engine/internal/domain"
	"github.com/griphq/retention-engine/internal/playbook"
)

func strp(s string) *string { return &s }

func TestBuildScheduleCumulativeDelays(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	steps := []domain.PlaybookStep{
		{StepNumber: 1, Type: domain.StepEmail, DelayHours: 0, Content: strp("welcome")},
		{StepNumber: 2, Type: domain.StepWait, DelayHours: 48},
		{StepNumber: 3, Type: domain.StepCheckStatus, DelayHours: 0},
		{StepNumber: 4, Type: domain.StepEmail, DelayHours: 24, Content: strp("follow up")},
	}

	sched := playbook.BuildSchedule("enr-1", steps, start)
	if len(sched) != 4 {
		t.Fatalf("len = %d, want 4", len(sched))
	}

	wantOffsets := []time.Duration{0, 48 * time.Hour, 48 * time.Hour, 72 * time.Hour}
	for i, se := range sched {
		if se.EnrollmentID != "enr-1" {
			t.Errorf("step %d: enrollment ID = %q", i, se.EnrollmentID)
		}
		if got := se.ScheduledFor.Sub(start); got != wantOffsets[i] {
			t.Errorf("step %d: offset = %v, want %v", se.StepNumber, got, wantOffsets[i])
		}
		if se.ExecutedAt != nil {
			t.Errorf("step %d: new schedule must be pending", se.StepNumber)
		}
	}

	// scheduled_for never decreases in step order
	for i := 1; i < len(sched); i++ {
		if sched[i].ScheduledFor.Before(sched[i-1].ScheduledFor) {
			t.Fatalf("schedule not monotone at step %d", sched[i].StepNumber)
		}
	}
}

func TestBuildScheduleChannelOnlyForEmailSteps(t *testing.T) {
	steps := []domain.PlaybookStep{
		{StepNumber: 1, Type: domain.StepEmail, Content: strp("hi")},
		{StepNumber: 2, Type: domain.StepWait, DelayHours: 24},
		{StepNumber: 3, Type: domain.StepCheckStatus},
	}
	sched := playbook.BuildSchedule("enr-1", steps, time.Now())

	if sched[0].Channel == nil || *sched[0].Channel != domain.ChannelEmail {
		t.Error("email step should default to the email channel")
	}
	if sched[1].Channel != nil || sched[2].Channel != nil {
		t.Error("non-email steps carry no channel")
	}
	if sched[0].Content == nil || *sched[0].Content != "hi" {
		t.Error("content must be snapshotted onto the execution row")
	}
}

func TestBuildScheduleEmpty(t *testing.T) {
	if got := playbook.BuildSchedule("enr-1", nil, time.Now()); len(got) != 0 {
		t.Fatalf("expected empty schedule, got %d rows", len(got))
	}
}
