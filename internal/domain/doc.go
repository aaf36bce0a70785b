// Package domain holds the core entities of the retention engine: members
// and their churn-risk scores, communities, playbooks with their enrollments
// and step schedules, and the outreach log. Types here carry no behavior
// beyond simple derivations; persistence and orchestration live in the
// service and repository packages.
package domain
