// Package enrollment manages the playbook enrollment lifecycle: eligibility
// checks, enrolling members, generating the frozen step schedule, and
// stopping active runs. Step execution is driven separately by the worker
// sweep.
package enrollment
