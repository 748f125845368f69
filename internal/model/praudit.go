package model

import (
	"fmt"
	"time"
)

// PRDecision is the terminal verdict recorded on a PR action audit row.
type PRDecision string

const (
	// PRDecisionAllowed means policy passed and the external write happened.
	PRDecisionAllowed PRDecision = "allowed"
	// PRDecisionDenied means policy rejected the action before any write.
	PRDecisionDenied PRDecision = "denied"
	// PRDecisionError is the placeholder decision, rows stuck here mark an
	// attempt that crashed before reaching a terminal verdict.
	PRDecisionError PRDecision = "error"
)

// PRActionCreate is the only supported PR action kind.
const PRActionCreate = "create_pr"

// PRActionAudit is one durable audit row per (user, idempotency key) pair.
// It is inserted with Decision=error and updated exactly once to its terminal
// decision; rows that reached "allowed" are never mutated again.
type PRActionAudit struct {
	ID             string
	UserID         int
	IdempotencyKey string
	Action         string
	Provider       string
	GitDomain      string
	RepoFullName   string
	BaseBranch     string
	HeadBranch     string
	Decision       PRDecision
	PolicyCode     string
	PolicyMessage  string
	RequestJSON    string
	ResponseJSON   string
	PRNumber       int
	PRURL          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Validate validates the audit row.
func (a *PRActionAudit) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("id is required: %w", ErrNotValid)
	}
	if a.IdempotencyKey == "" {
		return fmt.Errorf("idempotency key is required: %w", ErrNotValid)
	}
	if a.RepoFullName == "" {
		return fmt.Errorf("repo full name is required: %w", ErrNotValid)
	}
	return nil
}
