// Package service implements lead ingestion: duplicate resolution, field
// clubbing and the create path. Every ingestion source (manual form, CSV
// import, webhook adapters) funnels through CreateOrMerge.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"leadengine/internal/audit"
	"leadengine/internal/geo"
	"leadengine/internal/leads/domain"
	"leadengine/internal/leads/repository"
	"leadengine/internal/notification/outbox"
	"leadengine/internal/users"
	"leadengine/platform/apperr"
	"leadengine/platform/logger"
	"leadengine/platform/phone"

	"github.com/google/uuid"
)

// Machine narration used for clubbing side effects.
const (
	commentPostedAgain     = "The Lead was Posted again"
	titleDuplicateClubbed  = "Duplicate Lead Clubbed"
	titleNewLead           = "New Lead Created"
	welcomeMessageTemplate = "Thank you for your enquiry. Our team will reach out to you shortly."
)

const messageTimeout = 10 * time.Second

// LeadStore is the slice of the lead repository ingestion needs.
type LeadStore interface {
	FindByMobile(ctx context.Context, mobile string) (domain.Lead, error)
	FindByEmail(ctx context.Context, email string) (domain.Lead, error)
	Create(ctx context.Context, p repository.CreateLeadParams) (domain.Lead, error)
	ApplyMerge(ctx context.Context, p repository.MergeUpdateParams) error
}

// UserDirectory resolves notification targets.
type UserDirectory interface {
	ListByRoles(ctx context.Context, roles ...string) ([]users.User, error)
}

// AuditLog records administrative and system actions.
type AuditLog interface {
	Record(ctx context.Context, action string, leadID *uuid.UUID, actorID *uuid.UUID, details map[string]any) error
}

// GeoLookup resolves a pincode to state and district for import auto-fill.
type GeoLookup interface {
	Lookup(ctx context.Context, pincode string) (geo.Region, error)
}

// MessageDispatcher sends fire-and-forget messages to leads. Errors are
// swallowed; a failed welcome message never fails an ingestion.
type MessageDispatcher interface {
	SendMessage(ctx context.Context, phoneNumber string, message string) error
}

type Service struct {
	store     LeadStore
	directory UserDirectory
	audits    AuditLog
	geo       GeoLookup
	messenger MessageDispatcher
	log       *logger.Logger
}

func New(store LeadStore, directory UserDirectory, audits AuditLog, geoLookup GeoLookup, messenger MessageDispatcher, log *logger.Logger) *Service {
	return &Service{
		store:     store,
		directory: directory,
		audits:    audits,
		geo:       geoLookup,
		messenger: messenger,
		log:       log,
	}
}

// Result describes what one ingestion call did.
type Result struct {
	LeadID  uuid.UUID `json:"leadId"`
	Created bool      `json:"created"`
	Merged  bool      `json:"merged"`
	// Dropped means the incoming record matched a not_relevant lead and was
	// discarded. This is an intentional silent no-op, not an error.
	Dropped bool `json:"dropped"`
}

// CreateOrMerge is the single ingestion entry point. The incoming record is
// normalized, matched against the mobile and email identity indexes (mobile
// wins), and either clubbed into the existing lead or inserted fresh with
// the next serial number.
func (s *Service) CreateOrMerge(ctx context.Context, in domain.LeadData) (Result, error) {
	return s.createOrMerge(ctx, in, nil)
}

func (s *Service) createOrMerge(ctx context.Context, in domain.LeadData, assignee *uuid.UUID) (Result, error) {
	normalized, err := normalizeData(in)
	if err != nil {
		return Result{}, err
	}

	if normalized.MobileNo != "" && !phone.LooksValid(normalized.MobileNo) {
		// Preserved behavior: short inputs still get the country prefix and
		// are stored as-is. Likely a defect inherited from the source system.
		s.log.Warn("suspicious canonical mobile number", "mobile", normalized.MobileNo)
	}

	existing, found, err := s.lookup(ctx, normalized)
	if err != nil {
		return Result{}, err
	}

	if found {
		if existing.IsTerminal() {
			return Result{LeadID: existing.ID, Dropped: true}, nil
		}
		return s.merge(ctx, existing, normalized)
	}

	return s.create(ctx, normalized, assignee)
}

func (s *Service) lookup(ctx context.Context, in domain.LeadData) (domain.Lead, bool, error) {
	if in.MobileNo != "" {
		lead, err := s.store.FindByMobile(ctx, in.MobileNo)
		if err == nil {
			return lead, true, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return domain.Lead{}, false, err
		}
	}

	if in.Email != "" && in.Email != domain.PlaceholderEmail {
		lead, err := s.store.FindByEmail(ctx, in.Email)
		if err == nil {
			return lead, true, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return domain.Lead{}, false, err
		}
	}

	return domain.Lead{}, false, nil
}

func (s *Service) merge(ctx context.Context, existing domain.Lead, in domain.LeadData) (Result, error) {
	changes := domain.MergeInto(&existing, in)

	params := repository.MergeUpdateParams{
		LeadID:  existing.ID,
		Changes: changes,
	}
	if len(changes) > 0 {
		params.CommentBody = commentPostedAgain
	}
	if existing.AssignedTo != nil {
		params.Notify = []repository.NotifyTarget{{
			UserID:  *existing.AssignedTo,
			Kind:    outbox.KindDuplicateClubbed,
			Title:   titleDuplicateClubbed,
			Content: "A duplicate submission was clubbed into your lead " + existing.MobileNo + ".",
		}}
	}

	if err := s.store.ApplyMerge(ctx, params); err != nil {
		return Result{}, err
	}

	// Audit is best-effort; the merge is already committed.
	if err := s.audits.Record(ctx, audit.ActionClubDuplicateLead, &existing.ID, nil, map[string]any{
		"changedFields": len(changes),
	}); err != nil {
		s.log.SideEffectError("audit club_duplicate_lead", err)
	}

	return Result{LeadID: existing.ID, Merged: true}, nil
}

func (s *Service) create(ctx context.Context, in domain.LeadData, assignee *uuid.UUID) (Result, error) {
	notify, err := s.managementTargets(ctx, in)
	if err != nil {
		// Missing targets must not block the insert.
		s.log.SideEffectError("resolve notification targets", err)
		notify = nil
	}

	lead, err := s.store.Create(ctx, repository.CreateLeadParams{
		Data:       in,
		AssignedTo: assignee,
		Notify:     notify,
	})
	if err != nil {
		return Result{}, err
	}

	s.sendWelcome(lead)

	return Result{LeadID: lead.ID, Created: true}, nil
}

func (s *Service) managementTargets(ctx context.Context, in domain.LeadData) ([]repository.NotifyTarget, error) {
	recipients, err := s.directory.ListByRoles(ctx, users.RoleAdmin, users.RoleManager)
	if err != nil {
		return nil, err
	}

	targets := make([]repository.NotifyTarget, 0, len(recipients))
	for _, recipient := range recipients {
		targets = append(targets, repository.NotifyTarget{
			UserID:  recipient.ID,
			Kind:    outbox.KindNewLead,
			Title:   titleNewLead,
			Content: "A new lead " + in.MobileNo + " arrived from " + sourceOrUnknown(in.Source) + ".",
		})
	}
	return targets, nil
}

// sendWelcome dispatches the welcome message without blocking the caller.
func (s *Service) sendWelcome(lead domain.Lead) {
	if s.messenger == nil || lead.MobileNo == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), messageTimeout)
		defer cancel()
		if err := s.messenger.SendMessage(ctx, lead.MobileNo, welcomeMessageTemplate); err != nil {
			s.log.SideEffectError("welcome message", err)
		}
	}()
}

func sourceOrUnknown(source string) string {
	if source == "" {
		return "an unknown source"
	}
	return source
}

func normalizeData(in domain.LeadData) (domain.LeadData, error) {
	in.MobileNo = phone.Normalize(in.MobileNo)
	in.AltMobileNo = phone.Normalize(in.AltMobileNo)
	in.Email = canonicalEmail(in.Email)
	in.AltEmail = canonicalEmail(in.AltEmail)

	if in.MobileNo == "" && (in.Email == "" || in.Email == domain.PlaceholderEmail) {
		return domain.LeadData{}, apperr.Validation("a mobile number or email is required")
	}

	return in, nil
}

func canonicalEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
