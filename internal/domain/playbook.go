package domain

import "time"

// PlaybookType distinguishes built-in playbooks from operator-authored ones.
type PlaybookType string

const (
	PlaybookSystem PlaybookType = "system"
	PlaybookCustom PlaybookType = "custom"
)

// Operator is a trigger-condition comparison operator.
type Operator string

const (
	OpEq  Operator = "eq"
	OpGt  Operator = "gt"
	OpLt  Operator = "lt"
	OpGte Operator = "gte"
	OpLte Operator = "lte"
	OpIn  Operator = "in"
)

// TriggerCondition is a single field/operator/value eligibility test.
// Conditions on a playbook are ANDed.
type TriggerCondition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// StepType enumerates what a playbook step does when it fires.
type StepType string

const (
	StepEmail       StepType = "email"
	StepWait        StepType = "wait"
	StepCheckStatus StepType = "check_status"
)

// PlaybookStep is one step of a playbook definition. DelayHours is relative
// to the previous step; the scheduler accumulates it from the enrollment
// instant.
type PlaybookStep struct {
	StepNumber int      `json:"step_number"`
	Type       StepType `json:"type"`
	DelayHours int      `json:"delay_hours"`
	TemplateID *string  `json:"template_id,omitempty"`
	Subject    *string  `json:"subject,omitempty"`
	Content    *string  `json:"content,omitempty"`
}

// Playbook is a reusable automation sequence: eligibility conditions plus an
// ordered step list. The engine only reads playbooks; authoring lives in the
// dashboard.
type Playbook struct {
	ID                string             `json:"id" db:"id"`
	CommunityID       string             `json:"community_id" db:"community_id"`
	Name              string             `json:"name" db:"name"`
	Emoji             string             `json:"emoji" db:"emoji"`
	Description       *string            `json:"description" db:"description"`
	Type              PlaybookType       `json:"playbook_type" db:"playbook_type"`
	TriggerConditions []TriggerCondition `json:"trigger_conditions" db:"trigger_conditions"`
	Steps             []PlaybookStep     `json:"steps" db:"steps"`
	Active            bool               `json:"active" db:"active"`
	MinTier           PlanTier           `json:"min_tier" db:"min_tier"`

	TotalEnrollments   int `json:"total_enrollments" db:"total_enrollments"`
	TotalCompletions   int `json:"total_completions" db:"total_completions"`
	SuccessfulOutcomes int `json:"successful_outcomes" db:"successful_outcomes"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// EnrollmentStatus is the lifecycle state of a member's run through a
// playbook.
type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentStopped   EnrollmentStatus = "stopped"
	EnrollmentFailed    EnrollmentStatus = "failed"
)

// Enrollment records one member's progress through one playbook. There is at
// most one row per (playbook, member); re-enrollment resets the existing row
// instead of inserting a new one.
type Enrollment struct {
	ID          string           `json:"id" db:"id"`
	PlaybookID  string           `json:"playbook_id" db:"playbook_id"`
	MemberID    string           `json:"member_id" db:"member_id"`
	CurrentStep int              `json:"current_step" db:"current_step"`
	Status      EnrollmentStatus `json:"status" db:"status"`
	EnrolledAt  time.Time        `json:"enrolled_at" db:"enrolled_at"`
	CompletedAt *time.Time       `json:"completed_at" db:"completed_at"`
	Outcome     *string          `json:"outcome" db:"outcome"`
}

// StepOutcome is the structured result recorded when a step executes.
type StepOutcome struct {
	Status  string  `json:"status,omitempty"`
	Channel Channel `json:"channel,omitempty"`
	Success *bool   `json:"success,omitempty"`
}

// StepExecution is one scheduled firing of one enrollment step. The whole
// set is generated at enrollment time and never revised afterwards;
// ExecutedAt nil means pending. ScheduledFor is non-decreasing in
// StepNumber within an enrollment.
type StepExecution struct {
	ID           string       `json:"id" db:"id"`
	EnrollmentID string       `json:"enrollment_id" db:"enrollment_id"`
	StepNumber   int          `json:"step_number" db:"step_number"`
	StepType     StepType     `json:"step_type" db:"step_type"`
	Channel      *Channel     `json:"channel" db:"channel"`
	ScheduledFor time.Time    `json:"scheduled_for" db:"scheduled_for"`
	ExecutedAt   *time.Time   `json:"executed_at" db:"executed_at"`
	Content      *string      `json:"content" db:"content"`
	Outcome      *StepOutcome `json:"outcome" db:"outcome"`
	Error        *string      `json:"error" db:"error"`
}
