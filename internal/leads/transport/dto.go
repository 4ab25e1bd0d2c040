// Package transport holds request and response shapes for the lead HTTP API.
package transport

import (
	"time"

	"leadengine/internal/leads/domain"
	"leadengine/internal/leads/repository"

	"github.com/google/uuid"
)

// CreateLeadRequest is a single inbound lead from any channel. Mobile and
// email are normalized server side; validation here only rejects shapes that
// could never identify a lead.
type CreateLeadRequest struct {
	MobileNo    string `json:"mobileNo" validate:"omitempty,max=20"`
	AltMobileNo string `json:"altMobileNo" validate:"omitempty,max=20"`
	Email       string `json:"email" validate:"omitempty,email"`
	AltEmail    string `json:"altEmail" validate:"omitempty,email"`
	Name        string `json:"name" validate:"omitempty,max=200"`
	Subject     string `json:"subject" validate:"omitempty,max=500"`
	Message     string `json:"message" validate:"omitempty,max=5000"`
	State       string `json:"state" validate:"omitempty,max=100"`
	District    string `json:"district" validate:"omitempty,max=100"`
	Station     string `json:"station" validate:"omitempty,max=100"`
	Pincode     string `json:"pincode" validate:"omitempty,len=6,numeric"`
	Source      string `json:"source" validate:"omitempty,max=100"`
	AgencyName  string `json:"agencyName" validate:"omitempty,max=200"`
}

func (r CreateLeadRequest) ToLeadData() domain.LeadData {
	return domain.LeadData{
		MobileNo:    r.MobileNo,
		AltMobileNo: r.AltMobileNo,
		Email:       r.Email,
		AltEmail:    r.AltEmail,
		Name:        r.Name,
		Subject:     r.Subject,
		Message:     r.Message,
		State:       r.State,
		District:    r.District,
		Station:     r.Station,
		Pincode:     r.Pincode,
		Source:      r.Source,
		AgencyName:  r.AgencyName,
	}
}

// BulkCreateRequest carries a pre-parsed batch of leads, optionally assigned
// straight to one agent.
type BulkCreateRequest struct {
	Leads      []CreateLeadRequest `json:"leads" validate:"required,min=1,max=1000,dive"`
	AssignedTo *uuid.UUID          `json:"assignedTo"`
}

// BackfillRequest drives one batch of the serial backfill. Cursor and
// CursorID echo the nextCursor/nextCursorID pair of the previous response.
type BackfillRequest struct {
	BatchSize int        `json:"batchSize" validate:"omitempty,min=1,max=5000"`
	Cursor    *time.Time `json:"cursor"`
	CursorID  *uuid.UUID `json:"cursorID"`
}

// LeadResponse is the external shape of a lead.
type LeadResponse struct {
	ID                  uuid.UUID  `json:"id"`
	SerialNo            *int64     `json:"serialNo"`
	MobileNo            string     `json:"mobileNo"`
	AltMobileNo         string     `json:"altMobileNo,omitempty"`
	Email               string     `json:"email"`
	AltEmail            string     `json:"altEmail,omitempty"`
	Name                string     `json:"name"`
	Subject             string     `json:"subject"`
	Message             string     `json:"message"`
	State               string     `json:"state"`
	District            string     `json:"district"`
	Station             string     `json:"station"`
	Pincode             string     `json:"pincode"`
	Source              string     `json:"source"`
	AgencyName          string     `json:"agencyName"`
	Status              string     `json:"status"`
	Heat                string     `json:"heat"`
	AssignedTo          *uuid.UUID `json:"assignedTo"`
	AssignedDate        *time.Time `json:"assignedDate"`
	FirstAssignmentDate *time.Time `json:"firstAssignmentDate"`
	ReassignmentCount   int        `json:"reassignmentCount"`
	LastActivityTime    *time.Time `json:"lastActivityTime"`
	NextFollowup        *time.Time `json:"nextFollowup"`
	CreatedAt           time.Time  `json:"createdAt"`
}

func ToLeadResponse(l domain.Lead) LeadResponse {
	return LeadResponse{
		ID:                  l.ID,
		SerialNo:            l.SerialNo,
		MobileNo:            l.MobileNo,
		AltMobileNo:         l.AltMobileNo,
		Email:               l.Email,
		AltEmail:            l.AltEmail,
		Name:                l.Name,
		Subject:             l.Subject,
		Message:             l.Message,
		State:               l.State,
		District:            l.District,
		Station:             l.Station,
		Pincode:             l.Pincode,
		Source:              l.Source,
		AgencyName:          l.AgencyName,
		Status:              string(l.Status),
		Heat:                string(l.Heat),
		AssignedTo:          l.AssignedTo,
		AssignedDate:        l.AssignedDate,
		FirstAssignmentDate: l.FirstAssignmentDate,
		ReassignmentCount:   l.ReassignmentCount,
		LastActivityTime:    l.LastActivityTime,
		NextFollowup:        l.NextFollowup,
		CreatedAt:           l.CreatedAt,
	}
}

// CommentResponse is the external shape of a lead comment.
type CommentResponse struct {
	ID        uuid.UUID  `json:"id"`
	LeadID    uuid.UUID  `json:"leadId"`
	AuthorID  *uuid.UUID `json:"authorId"`
	Body      string     `json:"body"`
	CreatedAt time.Time  `json:"createdAt"`
}

func ToCommentResponses(comments []repository.Comment) []CommentResponse {
	out := make([]CommentResponse, len(comments))
	for i, comment := range comments {
		out[i] = CommentResponse{
			ID:        comment.ID,
			LeadID:    comment.LeadID,
			AuthorID:  comment.AuthorID,
			Body:      comment.Body,
			CreatedAt: comment.CreatedAt,
		}
	}
	return out
}

// AddCommentRequest posts a manual comment on a lead.
type AddCommentRequest struct {
	Body string `json:"body" validate:"required,max=5000"`
}
