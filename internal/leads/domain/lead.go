// Package domain holds the lead entity and the pure rules that govern
// identity merging and lifecycle transitions. Nothing in this package
// touches storage.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status is a lead's decision classification.
type Status string

const (
	StatusYetToDecide Status = "yet_to_decide"
	StatusRelevant    Status = "relevant"
	StatusNotRelevant Status = "not_relevant"
)

// Heat is a lead's qualitative engagement classification, distinct from Status.
type Heat string

const (
	HeatHot     Heat = "hot"
	HeatCold    Heat = "cold"
	HeatMatured Heat = "matured"
	HeatUnset   Heat = "unset"
)

// PlaceholderEmail is the reserved value meaning "email unknown". Leads
// carrying it are never matched by email during duplicate detection.
const PlaceholderEmail = "noemail@unknown.com"

// BatchCapacity is the fixed size of a lead batch. Batches are operational
// bookkeeping only; no business rule depends on membership.
const BatchCapacity = 500

// Lead is the central entity of the engine.
type Lead struct {
	ID          uuid.UUID
	MobileNo    string // canonical: digits only, country-code-prefixed
	Email       string // canonical: lower-cased
	AltMobileNo string
	AltEmail    string

	Name       string
	Subject    string
	Message    string
	State      string
	District   string
	Station    string
	Pincode    string
	Source     string
	AgencyName string

	Status Status
	Heat   Heat

	AssignedTo          *uuid.UUID
	AssignedDate        *time.Time
	FirstAssignmentDate *time.Time
	ReassignmentCount   int

	SerialNo *int64

	LastActivityTime *time.Time
	NextFollowup     *time.Time

	BatchID *uuid.UUID

	CreatedAt time.Time
}

// IsTerminal reports whether the lead is in the terminal ingestion state:
// new inbound data matching its identity is silently dropped.
func (l Lead) IsTerminal() bool {
	return l.Status == StatusNotRelevant
}

// IsAssigned reports whether the lead currently has an owner.
func (l Lead) IsAssigned() bool {
	return l.AssignedTo != nil
}

// HasKnownEmail reports whether the lead carries a usable email identity.
func (l Lead) HasKnownEmail() bool {
	return l.Email != "" && l.Email != PlaceholderEmail
}
