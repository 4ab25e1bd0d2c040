// Package dedup implements the bulk reconciliation job. Identity matching at
// ingest time does not catch everything (racing creates, legacy imports), so
// this job periodically re-groups the whole lead set by canonical mobile and
// email, keeps the oldest record of each group and absorbs the rest.
package dedup

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"leadengine/internal/audit"
	"leadengine/internal/leads/domain"
	"leadengine/internal/leads/repository"
	"leadengine/internal/notification/outbox"
	"leadengine/platform/logger"

	"github.com/google/uuid"
)

// Store is the slice of the lead repository the job drives.
type Store interface {
	ListAll(ctx context.Context) ([]domain.Lead, error)
	MergeGroup(ctx context.Context, p repository.MergeGroupParams) error
}

// UserDirectory resolves display names for merge narration.
type UserDirectory interface {
	DisplayName(ctx context.Context, id uuid.UUID) string
}

// AuditLog records the per-group merges.
type AuditLog interface {
	Record(ctx context.Context, action string, leadID *uuid.UUID, actorID *uuid.UUID, details map[string]any) error
}

type Job struct {
	store     Store
	directory UserDirectory
	audits    AuditLog
	log       *logger.Logger
}

func New(store Store, directory UserDirectory, audits AuditLog, log *logger.Logger) *Job {
	return &Job{store: store, directory: directory, audits: audits, log: log}
}

// Report summarizes one reconciliation run.
type Report struct {
	GroupsProcessed   int `json:"groupsProcessed"`
	MergedCount       int `json:"mergedCount"`
	DeletedCount      int `json:"deletedCount"`
	NotificationsSent int `json:"notificationsSent"`
	Failed            int `json:"failedGroups"`
}

// Run loads every lead, groups them by shared identity and collapses each
// group into its oldest member. A lead whose mobile matches one record and
// whose email matches another bridges the two into a single group. A failed
// group is logged and skipped; the next run sees it again.
func (j *Job) Run(ctx context.Context, actorID *uuid.UUID) (Report, error) {
	leads, err := j.store.ListAll(ctx)
	if err != nil {
		return Report{}, err
	}

	var report Report
	for _, group := range groupByIdentity(leads) {
		if err := j.mergeGroup(ctx, group, actorID, &report); err != nil {
			report.Failed++
			j.log.DatabaseError("dedup merge group", err)
		}
	}

	j.log.JobEvent("duplicate reconciliation",
		"groups", report.GroupsProcessed,
		"deleted", report.DeletedCount,
		"failed", report.Failed,
	)

	return report, nil
}

// groupByIdentity partitions leads into duplicate groups. Keys are the
// canonical mobile numbers and real (non-placeholder) emails of each record;
// grouping is transitive across keys. Each returned group has at least two
// members, ordered oldest first.
func groupByIdentity(leads []domain.Lead) [][]domain.Lead {
	byKey := map[string][]int{}
	for i, lead := range leads {
		for _, key := range identityKeys(lead) {
			byKey[key] = append(byKey[key], i)
		}
	}

	visited := make([]bool, len(leads))
	var groups [][]domain.Lead

	for i := range leads {
		if visited[i] {
			continue
		}
		visited[i] = true

		members := []int{i}
		queue := []int{i}
		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]
			for _, key := range identityKeys(leads[current]) {
				for _, other := range byKey[key] {
					if visited[other] {
						continue
					}
					visited[other] = true
					members = append(members, other)
					queue = append(queue, other)
				}
			}
		}

		if len(members) < 2 {
			continue
		}

		group := make([]domain.Lead, len(members))
		for n, idx := range members {
			group[n] = leads[idx]
		}
		sort.Slice(group, func(a, b int) bool {
			return group[a].CreatedAt.Before(group[b].CreatedAt)
		})
		groups = append(groups, group)
	}

	return groups
}

func identityKeys(lead domain.Lead) []string {
	keys := make([]string, 0, 2)
	if lead.MobileNo != "" {
		keys = append(keys, "m:"+lead.MobileNo)
	}
	if lead.HasKnownEmail() {
		keys = append(keys, "e:"+lead.Email)
	}
	return keys
}

func (j *Job) mergeGroup(ctx context.Context, group []domain.Lead, actorID *uuid.UUID, report *Report) error {
	canonical := group[0]
	absorbed := group[1:]

	changes := domain.MergeChanges{}
	for _, other := range absorbed {
		for column, value := range domain.MergeInto(&canonical, leadData(other)) {
			changes[column] = value
		}
	}

	absorbedIDs := make([]uuid.UUID, len(absorbed))
	for i, other := range absorbed {
		absorbedIDs[i] = other.ID
	}

	assignees := priorAssignees(group)
	notify := make([]repository.NotifyTarget, 0, len(assignees))
	for _, assignee := range assignees {
		notify = append(notify, repository.NotifyTarget{
			UserID:  assignee,
			Kind:    outbox.KindLeadUnassigned,
			Title:   "Duplicate Lead Clubbed",
			Content: "Lead " + canonical.MobileNo + " was consolidated with its duplicates and returned to the unassigned pool.",
		})
	}

	err := j.store.MergeGroup(ctx, repository.MergeGroupParams{
		CanonicalID: canonical.ID,
		Changes:     changes,
		AbsorbedIDs: absorbedIDs,
		CommentBody: j.narration(ctx, len(absorbed), assignees),
		Unassign:    true,
		Notify:      notify,
	})
	if err != nil {
		return err
	}

	report.GroupsProcessed++
	report.MergedCount += len(absorbed)
	report.DeletedCount += len(absorbed)
	report.NotificationsSent += len(notify)

	if err := j.audits.Record(ctx, audit.ActionBulkDedupSweep, &canonical.ID, actorID, map[string]any{
		"absorbed":      len(absorbed),
		"changedFields": len(changes),
	}); err != nil {
		j.log.SideEffectError("audit bulk_dedup_sweep", err)
	}

	return nil
}

// priorAssignees collects the distinct agents who held any member of the
// group, in group order.
func priorAssignees(group []domain.Lead) []uuid.UUID {
	seen := map[uuid.UUID]bool{}
	var assignees []uuid.UUID
	for _, lead := range group {
		if lead.AssignedTo == nil || seen[*lead.AssignedTo] {
			continue
		}
		seen[*lead.AssignedTo] = true
		assignees = append(assignees, *lead.AssignedTo)
	}
	return assignees
}

func (j *Job) narration(ctx context.Context, absorbed int, assignees []uuid.UUID) string {
	comment := "Duplicate leads clubbed by reconciliation"
	if absorbed == 1 {
		comment += " (1 record absorbed)"
	} else {
		comment += " (" + strconv.Itoa(absorbed) + " records absorbed)"
	}

	if len(assignees) > 0 {
		names := make([]string, len(assignees))
		for i, assignee := range assignees {
			names[i] = j.directory.DisplayName(ctx, assignee)
		}
		comment += "; previously assigned to " + strings.Join(names, ", ")
	}

	return comment
}

func leadData(l domain.Lead) domain.LeadData {
	return domain.LeadData{
		MobileNo:    l.MobileNo,
		AltMobileNo: l.AltMobileNo,
		Email:       l.Email,
		AltEmail:    l.AltEmail,
		Name:        l.Name,
		Subject:     l.Subject,
		Message:     l.Message,
		State:       l.State,
		District:    l.District,
		Station:     l.Station,
		Pincode:     l.Pincode,
		Source:      l.Source,
		AgencyName:  l.AgencyName,
	}
}
