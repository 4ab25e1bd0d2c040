package service

import (
	"context"
	"errors"

	"leadengine/internal/leads/domain"
	"leadengine/platform/apperr"

	"github.com/google/uuid"
)

// BulkReport summarizes a bulk ingestion run.
type BulkReport struct {
	Imported int `json:"importedCount"`
	Merged   int `json:"mergedCount"`
	Dropped  int `json:"droppedCount"`
	Rejected int `json:"rejectedCount"`
}

// BulkCreateOrMerge runs CreateOrMerge over a batch of records. Invalid
// records are counted and skipped; any other failure aborts the run so a
// partially applied import is visible to the operator. When assignee is
// set, freshly created leads go straight to that agent.
func (s *Service) BulkCreateOrMerge(ctx context.Context, records []domain.LeadData, assignee *uuid.UUID) (BulkReport, error) {
	var report BulkReport

	for _, record := range records {
		record = s.autoFillRegion(ctx, record)

		result, err := s.createOrMerge(ctx, record, assignee)
		if err != nil {
			var appErr *apperr.Error
			if errors.As(err, &appErr) && appErr.Kind == apperr.KindValidation {
				report.Rejected++
				continue
			}
			return report, err
		}

		switch {
		case result.Created:
			report.Imported++
		case result.Merged:
			report.Merged++
		case result.Dropped:
			report.Dropped++
		}
	}

	return report, nil
}

// autoFillRegion backfills state and district from the pincode directory
// when the record carries a pincode but no region. Unknown pincodes are
// left alone.
func (s *Service) autoFillRegion(ctx context.Context, record domain.LeadData) domain.LeadData {
	if s.geo == nil || record.Pincode == "" {
		return record
	}
	if record.State != "" && record.District != "" {
		return record
	}

	region, err := s.geo.Lookup(ctx, record.Pincode)
	if err != nil {
		return record
	}

	if record.State == "" {
		record.State = region.State
	}
	if record.District == "" {
		record.District = region.District
	}
	return record
}
