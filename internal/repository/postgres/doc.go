// Package postgres implements the service and worker persistence interfaces
// against PostgreSQL via database/sql and lib/pq. JSONB columns carry the
// structured fields (trigger conditions, steps, risk factors, outcomes,
// community settings).
package postgres
