package enrollment

import "errors"

// Sentinel errors for the enrollment service layer.
var (
	ErrPlaybookNotFound   = errors.New("playbook not found")
	ErrAlreadyEnrolled    = errors.New("member already enrolled in this playbook")
	ErrEnrollmentNotFound = errors.New("enrollment not found")
)
