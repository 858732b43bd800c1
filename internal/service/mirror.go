package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rapilink/backend/internal/models"
	"github.com/rapilink/backend/internal/wisphub"
)

const syncActivityName = "Ticket handling"

type MirrorResult struct {
	Process    models.Process   `json:"process"`
	Activity   *models.Activity `json:"activity,omitempty"`
	WorkItem   *models.WorkItem `json:"work_item,omitempty"`
	Superseded int64            `json:"superseded"`
}

// MirrorTicket upserts one upstream ticket into the local model with owner as its current
// assignee. A nil owner mirrors the process only.
func (s *WorkflowService) MirrorTicket(ctx context.Context, t wisphub.Ticket, owner *models.Profile) (MirrorResult, error) {
	var res MirrorResult
	err := s.lockProcess(ctx, t.ID, func(ctx context.Context) error {
		var err error
		res, err = s.mirror(ctx, t, owner, nil)
		return err
	})
	return res, err
}

func (s *WorkflowService) mirror(ctx context.Context, t wisphub.Ticket, owner *models.Profile, review *models.OwnerReview) (MirrorResult, error) {
	if t.ID == "" {
		return MirrorResult{}, fmt.Errorf("%w: ticket without id", ErrInvalidInput)
	}
	prev, err := s.Store.GetProcessByReference(ctx, t.ID)
	exists := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return MirrorResult{}, err
	}

	meta := metadataFromTicket(t)
	if exists {
		meta = MergeMetadata(prev.Metadata, meta)
	} else {
		meta.CurrentLevel = FrontLineLevel
	}
	meta.OwnerReview = review

	now := s.now()
	proc, err := s.Store.UpsertProcess(ctx, models.Process{
		ID:          newID(),
		ReferenceID: t.ID,
		Title:       ticketTitle(t),
		Status:      mirroredStatus(prev, exists, t),
		ProcessType: models.ProcessTypeTicket,
		Metadata:    meta,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return MirrorResult{}, fmt.Errorf("upsert process %s: %w", t.ID, err)
	}
	res := MirrorResult{Process: proc}

	if t.IsTerminal() {
		return res, s.closeOpenActivities(ctx, proc, models.WorkItemCompleted)
	}
	if owner == nil {
		return res, nil
	}
	if held, err := s.holdsEscalation(ctx, proc, owner.ID); err != nil || held {
		return res, err
	}

	act, err := s.Store.UpsertActivity(ctx, models.Activity{
		ID:           newID(),
		ProcessID:    proc.ID,
		Name:         syncActivityName,
		Status:       models.ActivityActive,
		ActivityType: models.ActivityTypeSync,
		StartedAt:    now,
	})
	if err != nil {
		return res, fmt.Errorf("upsert activity %s: %w", t.ID, err)
	}
	res.Activity = &act

	wi, err := s.Store.UpsertWorkItem(ctx, models.WorkItem{
		ID:              newID(),
		ActivityID:      act.ID,
		ParticipantID:   owner.ID,
		ParticipantType: models.ParticipantType(owner.OperationalLevel),
		Status:          models.WorkItemPending,
		Deadline:        now.Add(s.Options.WorkItemSLA),
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return res, fmt.Errorf("upsert work item %s: %w", t.ID, err)
	}
	res.WorkItem = &wi

	n, err := s.Store.SupersedeWorkItems(ctx, act.ID, owner.ID, now)
	if err != nil {
		return res, fmt.Errorf("supersede work items %s: %w", t.ID, err)
	}
	res.Superseded = n
	return res, nil
}

// holdsEscalation reports whether the participant already works the process through an
// escalation step, in which case the sync step must not hand them a second item.
func (s *WorkflowService) holdsEscalation(ctx context.Context, proc models.Process, participantID string) (bool, error) {
	if proc.Status != models.ProcessEscalated {
		return false, nil
	}
	items, err := s.Store.PendingWorkItemsFor(ctx, participantID)
	if err != nil {
		return false, err
	}
	for _, it := range items {
		if it.Process.ID == proc.ID && it.Activity.ActivityType == models.ActivityTypeEscalate {
			return true, nil
		}
	}
	return false, nil
}

// closeOpenActivities ends the sync and escalation steps of a process that is finished.
func (s *WorkflowService) closeOpenActivities(ctx context.Context, proc models.Process, itemStatus string) error {
	now := s.now()
	for _, typ := range []string{models.ActivityTypeSync, models.ActivityTypeEscalate} {
		act, err := s.Store.ActiveActivity(ctx, proc.ID, typ)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if _, err := s.Store.ClosePendingWorkItems(ctx, act.ID, itemStatus, now); err != nil {
			return err
		}
		if err := s.Store.CompleteActivity(ctx, act.ID, now); err != nil {
			return err
		}
	}
	return nil
}

func mirroredStatus(prev models.Process, exists bool, t wisphub.Ticket) string {
	if t.IsTerminal() {
		if exists && prev.Status == models.ProcessClosed {
			return models.ProcessClosed
		}
		return models.ProcessResolved
	}
	if exists && prev.Status == models.ProcessEscalated {
		return models.ProcessEscalated
	}
	return models.ProcessPending
}

func ticketTitle(t wisphub.Ticket) string {
	subject := strings.TrimSpace(t.Subject)
	if subject == "" {
		return "Ticket #" + t.ID
	}
	return fmt.Sprintf("#%s - %s", t.ID, subject)
}

func metadataFromTicket(t wisphub.Ticket) models.ProcessMetadata {
	meta := models.ProcessMetadata{
		ClientID:   t.ClientID,
		ClientName: t.ClientName,
		CreatedBy:  t.CreatedBy,
		Subject:    t.Subject,
		Snapshot:   t.Raw,
	}
	switch {
	case t.Priority != wisphub.PriorityUnknown:
		meta.Priority = strconv.Itoa(int(t.Priority))
	case t.PriorityLabel != "":
		meta.Priority = t.PriorityLabel
	}
	if !t.CreatedAt.IsZero() {
		opened := t.CreatedAt.UTC()
		meta.OpenedAt = &opened
	}
	return meta
}

// MergeMetadata overlays a fresh upstream projection on the stored metadata. Escalation
// bookkeeping always comes from prev, and fields the new payload leaves empty keep their
// previous value.
func MergeMetadata(prev, next models.ProcessMetadata) models.ProcessMetadata {
	out := next
	out.CurrentLevel = prev.CurrentLevel
	out.LastEscalationAt = prev.LastEscalationAt
	out.OwnerReview = prev.OwnerReview
	if out.ClientID == "" {
		out.ClientID = prev.ClientID
	}
	if out.ClientName == "" {
		out.ClientName = prev.ClientName
	}
	if out.CreatedBy == "" {
		out.CreatedBy = prev.CreatedBy
	}
	if out.Subject == "" {
		out.Subject = prev.Subject
	}
	if out.Priority == "" {
		out.Priority = prev.Priority
	}
	if out.OpenedAt == nil {
		out.OpenedAt = prev.OpenedAt
	}

	if len(prev.Snapshot) > 0 {
		merged := make(map[string]any, len(prev.Snapshot)+len(next.Snapshot))
		for k, v := range prev.Snapshot {
			merged[k] = v
		}
		for k, v := range next.Snapshot {
			if isBlank(v) {
				continue
			}
			merged[k] = v
		}
		out.Snapshot = merged
	}
	return out
}

func isBlank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	}
	return false
}
