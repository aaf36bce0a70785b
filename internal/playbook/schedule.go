package playbook

import (
	"time"

	"github.com/griphq/retention-engine/internal/domain"
)

// BuildSchedule produces the full step-execution schedule for an enrollment
// starting at start. Delay hours accumulate from the enrollment instant, not
// from the previous step's nominal time, so scheduled_for is non-decreasing
// in step order. Wait and check_status steps occupy schedule slots exactly
// like email steps. IDs are left empty for the repository to assign.
func BuildSchedule(enrollmentID string, steps []domain.PlaybookStep, start time.Time) []domain.StepExecution {
	out := make([]domain.StepExecution, 0, len(steps))
	cumulative := 0
	for _, step := range steps {
		cumulative += step.DelayHours
		exec := domain.StepExecution{
			EnrollmentID: enrollmentID,
			StepNumber:   step.StepNumber,
			StepType:     step.Type,
			ScheduledFor: start.Add(time.Duration(cumulative) * time.Hour),
			Content:      step.Content,
		}
		if step.Type == domain.StepEmail {
			ch := domain.ChannelEmail
			exec.Channel = &ch
		}
		out = append(out, exec)
	}
	return out
}
