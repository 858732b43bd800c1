package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rapilink/backend/internal/identity"
	"github.com/rapilink/backend/internal/models"
	"github.com/rapilink/backend/internal/wisphub"
)

// TicketUpdate describes one full-record write to an upstream ticket. A nil Owner keeps
// the current technician.
type TicketUpdate struct {
	ReferenceID string
	Owner       *models.Profile
	Action      string
	Level       int
	ActorName   string
	Reason      string
	Priority    *int
	Status      *int
	Attachment  string
}

// AuditBanner is appended to the upstream description so the change is visible to staff
// working the ticket in the upstream UI.
func AuditBanner(u TicketUpdate, at time.Time) string {
	var b strings.Builder
	title := strings.ToUpper(strings.TrimSpace(u.Action))
	if title == "" {
		title = "UPDATE"
	}
	if u.Level > 0 {
		title = fmt.Sprintf("%s (LEVEL %d)", title, u.Level)
	}
	fmt.Fprintf(&b, "--- %s ---\n", title)
	actor := strings.TrimSpace(u.ActorName)
	if actor == "" {
		actor = "system"
	}
	fmt.Fprintf(&b, "By: %s\n", actor)
	fmt.Fprintf(&b, "Date: %s", at.UTC().Format("2006-01-02 15:04 MST"))
	if reason := strings.TrimSpace(u.Reason); reason != "" {
		fmt.Fprintf(&b, "\nReason: %s", reason)
	}
	if u.Owner != nil && u.Owner.FullName != "" {
		fmt.Fprintf(&b, "\nAssigned to: %s", u.Owner.FullName)
	}
	if att := strings.TrimSpace(u.Attachment); att != "" {
		fmt.Fprintf(&b, "\nAttachment: %s", att)
	}
	return b.String()
}

// PushTicketUpdate writes the change upstream as a full replace of the fetched record.
// Nothing is written when the record cannot be read or the new owner has no upstream
// staff id.
func (s *WorkflowService) PushTicketUpdate(ctx context.Context, u TicketUpdate) error {
	if u.ReferenceID == "" {
		return fmt.Errorf("%w: no upstream reference", ErrInvalidInput)
	}
	raw, err := s.Upstream.TicketRaw(ctx, u.ReferenceID)
	if err != nil {
		return fmt.Errorf("%w: ticket %s: %v", ErrUpstreamUnavailable, u.ReferenceID, err)
	}

	changes := wisphub.UpdateChanges{
		Priority:        u.Priority,
		Status:          u.Status,
		AppendNote:      AuditBanner(u, s.now()),
		AllowedSubjects: s.Options.AllowedSubjects,
		DefaultSubject:  s.Options.DefaultSubject,
	}
	id, err := s.technicianID(ctx, raw, u.Owner)
	if err != nil {
		return err
	}
	if id != 0 {
		changes.TechnicianID = &id
	}

	payload := wisphub.BuildUpdatePayload(raw, changes)
	if err := s.Upstream.UpdateTicket(ctx, u.ReferenceID, payload); err != nil {
		return fmt.Errorf("%w: update ticket %s: %v", ErrUpstreamUnavailable, u.ReferenceID, err)
	}
	return nil
}

// technicianID returns the numeric staff id the write must carry: the new owner's, or the
// current technician's when the owner is kept. Records that name their technician instead
// of numbering them are resolved through the staff directory. Zero means the ticket stays
// unassigned.
func (s *WorkflowService) technicianID(ctx context.Context, raw map[string]any, owner *models.Profile) (int, error) {
	var current wisphub.Ticket
	if owner == nil {
		current = wisphub.TicketFromRaw(raw)
		if current.TechnicianID != 0 {
			return current.TechnicianID, nil
		}
		if identity.IsUnassigned(current.Technician) && current.TechnicianUsername == "" {
			return 0, nil
		}
	}
	staff, err := s.Upstream.Staff(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: staff directory: %v", ErrUpstreamUnavailable, err)
	}
	if owner != nil {
		id, ok := identity.ResolveStaffID(*owner, staff)
		if !ok {
			return 0, fmt.Errorf("%w: profile %s", ErrUpstreamMapping, owner.ID)
		}
		return id, nil
	}
	for _, name := range []string{current.TechnicianUsername, current.Technician} {
		if id, ok := identity.StaffIDByName(name, staff); ok {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: current technician %q", ErrUpstreamMapping, current.Technician)
}

// pushOrDiverge pushes the update and records a divergence entry instead of failing when
// upstream cannot follow the local change.
func (s *WorkflowService) pushOrDiverge(ctx context.Context, proc models.Process, u TicketUpdate, actorID string) UpstreamOutcome {
	err := s.PushTicketUpdate(ctx, u)
	if err == nil {
		s.Metrics.ObservePush("ok")
		return UpstreamOutcome{Pushed: true}
	}
	outcome := "failed"
	if errors.Is(err, ErrUpstreamMapping) {
		outcome = "unmapped"
	}
	s.Metrics.ObservePush(outcome)
	s.Logger.Warn().Err(err).Str("process_id", proc.ID).Str("reference_id", proc.ReferenceID).
		Str("action", u.Action).Msg("upstream diverged from local state")
	s.appendLog(ctx, proc.ID, models.EventUpstreamFailure,
		fmt.Sprintf("%s not applied upstream: %v", u.Action, err), actorID)
	return UpstreamOutcome{Divergence: err.Error()}
}

type CompleteOptions struct {
	Priority   *int   `json:"priority" validate:"omitempty,min=1,max=5"`
	Attachment string `json:"attachment"`
}

type CompletionResult struct {
	WorkItem models.WorkItem `json:"work_item"`
	Process  models.Process  `json:"process"`
	UpstreamOutcome
}

// CompleteAndSyncWorkItem completes the item, resolves its process and marks the upstream
// ticket resolved with the resolution appended to its description.
func (s *WorkflowService) CompleteAndSyncWorkItem(ctx context.Context, id, actorID, resolution string, opts CompleteOptions) (CompletionResult, error) {
	owned, err := s.ownedWorkItem(ctx, id)
	if err != nil {
		return CompletionResult{}, err
	}
	var res CompletionResult
	err = s.lockProcess(ctx, owned.Process.ReferenceID, func(ctx context.Context) error {
		if err := s.completeLocked(ctx, &owned, actorID, resolution); err != nil {
			return err
		}
		proc, err := s.Store.GetProcess(ctx, owned.Process.ID)
		if err != nil {
			return err
		}
		if err := s.closeOpenActivities(ctx, proc, models.WorkItemCancelled); err != nil {
			return err
		}
		proc.Status = models.ProcessResolved
		proc.UpdatedAt = s.now()
		if err := s.Store.UpdateProcess(ctx, proc); err != nil {
			return err
		}
		res.WorkItem = owned.WorkItem
		res.Process = proc

		if proc.ReferenceID != "" {
			status := s.Options.ResolvedStatus
			if status <= 0 {
				status = 3
			}
			res.UpstreamOutcome = s.pushOrDiverge(ctx, proc, TicketUpdate{
				ReferenceID: proc.ReferenceID,
				Action:      "RESOLUTION",
				ActorName:   s.displayName(ctx, actorID),
				Reason:      resolution,
				Priority:    opts.Priority,
				Status:      &status,
				Attachment:  opts.Attachment,
			}, actorID)
		}
		return nil
	})
	return res, err
}
