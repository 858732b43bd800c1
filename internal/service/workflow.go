package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rapilink/backend/internal/geocode"
	"github.com/rapilink/backend/internal/identity"
	"github.com/rapilink/backend/internal/metrics"
	"github.com/rapilink/backend/internal/models"
	"github.com/rapilink/backend/internal/wisphub"
)

type Options struct {
	PageDelay              time.Duration
	MaxPages               int
	LookbackDays           int
	FullLookbackDays       int
	WorkItemSLA            time.Duration
	EscalationSLA          time.Duration
	AutoCloseAfter         time.Duration
	AllowedSubjects        []string
	DefaultSubject         string
	ResolvedStatus         int
	AutoApplyLowConfidence bool
	CountryDefault         string
}

func DefaultOptions() Options {
	return Options{
		PageDelay:        300 * time.Millisecond,
		MaxPages:         50,
		LookbackDays:     30,
		FullLookbackDays: 60,
		WorkItemSLA:      24 * time.Hour,
		EscalationSLA:    4 * time.Hour,
		AutoCloseAfter:   24 * time.Hour,
		DefaultSubject:   "Otro",
		ResolvedStatus:   3,
		CountryDefault:   "Colombia",
	}
}

// WorkflowService mirrors upstream tickets into the local process model and drives
// escalation. Collaborators are injected once at startup.
type WorkflowService struct {
	Store    Store
	Upstream wisphub.Client
	Resolver *identity.Resolver
	Geocoder geocode.Geocoder
	Metrics  *metrics.Workflow
	Logger   zerolog.Logger
	Options  Options
	Now      func() time.Time
}

func (s *WorkflowService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *WorkflowService) resolver() *identity.Resolver {
	if s.Resolver == nil {
		s.Resolver = identity.NewResolver(nil)
	}
	return s.Resolver
}

func newID() string {
	return uuid.NewString()
}

// lockProcess runs fn as one store transaction serialized per upstream ticket. Processes
// without a reference get the transaction but no lock.
func (s *WorkflowService) lockProcess(ctx context.Context, referenceID string, fn func(ctx context.Context) error) error {
	return s.Store.WithReferenceLock(ctx, referenceID, fn)
}

type ProcessInput struct {
	ReferenceID string                 `json:"reference_id"`
	Title       string                 `json:"title" validate:"required"`
	ProcessType string                 `json:"process_type"`
	Metadata    models.ProcessMetadata `json:"metadata"`
}

func (s *WorkflowService) CreateProcess(ctx context.Context, in ProcessInput, actorID string) (models.Process, error) {
	if strings.TrimSpace(in.Title) == "" {
		return models.Process{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	processType := in.ProcessType
	if processType == "" {
		processType = models.ProcessTypeInternal
		if in.ReferenceID != "" {
			processType = models.ProcessTypeTicket
		}
	}
	now := s.now()
	created, err := s.Store.InsertProcess(ctx, models.Process{
		ID:          newID(),
		ReferenceID: strings.TrimSpace(in.ReferenceID),
		Title:       strings.TrimSpace(in.Title),
		Status:      models.ProcessPending,
		ProcessType: processType,
		Metadata:    in.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return models.Process{}, err
	}
	s.appendLog(ctx, created.ID, models.EventCreation, "Process created: "+created.Title, actorID)
	return created, nil
}

type StepInput struct {
	ProcessID       string        `json:"process_id"`
	Name            string        `json:"name" validate:"required"`
	ActivityType    string        `json:"activity_type"`
	ParticipantID   string        `json:"participant_id" validate:"required"`
	ParticipantType string        `json:"participant_type"`
	Duration        time.Duration `json:"-"`
}

// CreateStep opens an activity with one pending work item due after the step duration.
func (s *WorkflowService) CreateStep(ctx context.Context, in StepInput) (models.Activity, models.WorkItem, error) {
	if in.Name == "" || in.ParticipantID == "" {
		return models.Activity{}, models.WorkItem{}, fmt.Errorf("%w: name and participant are required", ErrInvalidInput)
	}
	if _, err := s.Store.GetProcess(ctx, in.ProcessID); err != nil {
		return models.Activity{}, models.WorkItem{}, err
	}
	if in.ActivityType == "" {
		in.ActivityType = models.ActivityTypeManual
	}
	if in.ParticipantType == "" {
		in.ParticipantType = models.ParticipantUser
	}
	if in.Duration <= 0 {
		in.Duration = s.Options.WorkItemSLA
	}
	now := s.now()
	act, err := s.Store.InsertActivity(ctx, models.Activity{
		ID:           newID(),
		ProcessID:    in.ProcessID,
		Name:         in.Name,
		Status:       models.ActivityActive,
		ActivityType: in.ActivityType,
		StartedAt:    now,
	})
	if err != nil {
		return models.Activity{}, models.WorkItem{}, err
	}
	wi, err := s.Store.InsertWorkItem(ctx, models.WorkItem{
		ID:              newID(),
		ActivityID:      act.ID,
		ParticipantID:   in.ParticipantID,
		ParticipantType: in.ParticipantType,
		Status:          models.WorkItemPending,
		Deadline:        now.Add(in.Duration),
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return act, models.WorkItem{}, err
	}
	return act, wi, nil
}

func (s *WorkflowService) ownedWorkItem(ctx context.Context, id string) (models.OwnedWorkItem, error) {
	wi, err := s.Store.GetWorkItem(ctx, id)
	if err != nil {
		return models.OwnedWorkItem{}, err
	}
	act, err := s.Store.GetActivity(ctx, wi.ActivityID)
	if err != nil {
		return models.OwnedWorkItem{}, fmt.Errorf("activity %s: %w", wi.ActivityID, err)
	}
	proc, err := s.Store.GetProcess(ctx, act.ProcessID)
	if err != nil {
		return models.OwnedWorkItem{}, fmt.Errorf("process %s: %w", act.ProcessID, err)
	}
	return models.OwnedWorkItem{WorkItem: wi, Activity: act, Process: proc}, nil
}

// CompleteWorkItem marks the item and its activity completed. Sibling items of a fanned
// out activity are cancelled with it.
func (s *WorkflowService) CompleteWorkItem(ctx context.Context, id, actorID, note string) (models.OwnedWorkItem, error) {
	owned, err := s.ownedWorkItem(ctx, id)
	if err != nil {
		return models.OwnedWorkItem{}, err
	}
	err = s.lockProcess(ctx, owned.Process.ReferenceID, func(ctx context.Context) error {
		return s.completeLocked(ctx, &owned, actorID, note)
	})
	return owned, err
}

func (s *WorkflowService) completeLocked(ctx context.Context, owned *models.OwnedWorkItem, actorID, note string) error {
	wi, err := s.Store.GetWorkItem(ctx, owned.WorkItem.ID)
	if err != nil {
		return err
	}
	if wi.Status != models.WorkItemPending {
		return fmt.Errorf("%w: %s", ErrInvalidState, wi.Status)
	}
	now := s.now()
	if err := s.Store.SetWorkItemStatus(ctx, wi.ID, models.WorkItemCompleted, now); err != nil {
		return err
	}
	if _, err := s.Store.ClosePendingWorkItems(ctx, wi.ActivityID, models.WorkItemCancelled, now); err != nil {
		return err
	}
	if err := s.Store.CompleteActivity(ctx, wi.ActivityID, now); err != nil {
		return err
	}
	wi.Status = models.WorkItemCompleted
	wi.UpdatedAt = now
	owned.WorkItem = wi
	owned.Activity.Status = models.ActivityCompleted
	owned.Activity.CompletedAt = &now

	desc := "Work item completed"
	if note = strings.TrimSpace(note); note != "" {
		desc += ": " + note
	}
	s.appendLog(ctx, owned.Process.ID, models.EventApproval, desc, actorID)
	return nil
}

// UpstreamOutcome reports what happened to the upstream side of a local change. Local
// state is never rolled back when the push fails.
type UpstreamOutcome struct {
	Pushed     bool   `json:"pushed"`
	Divergence string `json:"divergence,omitempty"`
}

type ReassignResult struct {
	WorkItem models.WorkItem `json:"work_item"`
	UpstreamOutcome
}

func (s *WorkflowService) ReassignWorkItem(ctx context.Context, id, newParticipantID, actorID string) (ReassignResult, error) {
	if strings.TrimSpace(newParticipantID) == "" {
		return ReassignResult{}, fmt.Errorf("%w: participant is required", ErrInvalidInput)
	}
	owned, err := s.ownedWorkItem(ctx, id)
	if err != nil {
		return ReassignResult{}, err
	}

	var owner *models.Profile
	participantType := models.ParticipantPlaceholder
	p, err := s.Store.GetProfile(ctx, newParticipantID)
	switch {
	case err == nil:
		owner = &p
		participantType = models.ParticipantType(p.OperationalLevel)
	case !errors.Is(err, ErrNotFound):
		return ReassignResult{}, err
	case !isPlaceholderParticipant(newParticipantID):
		return ReassignResult{}, fmt.Errorf("%w: %q is not a known participant", ErrInvalidInput, newParticipantID)
	}

	var res ReassignResult
	err = s.lockProcess(ctx, owned.Process.ReferenceID, func(ctx context.Context) error {
		wi, err := s.Store.GetWorkItem(ctx, id)
		if err != nil {
			return err
		}
		if wi.Status != models.WorkItemPending {
			return fmt.Errorf("%w: %s", ErrInvalidState, wi.Status)
		}
		now := s.now()
		if err := s.Store.SetWorkItemParticipant(ctx, id, newParticipantID, participantType, now); err != nil {
			return err
		}
		previous := wi.ParticipantID
		wi.ParticipantID = newParticipantID
		wi.ParticipantType = participantType
		wi.UpdatedAt = now
		res.WorkItem = wi

		s.appendLog(ctx, owned.Process.ID, models.EventReassignment,
			fmt.Sprintf("Reassigned from %s to %s", s.displayName(ctx, previous), s.displayName(ctx, newParticipantID)), actorID)

		if owner != nil && owned.Process.ReferenceID != "" {
			res.UpstreamOutcome = s.pushOrDiverge(ctx, owned.Process, TicketUpdate{
				ReferenceID: owned.Process.ReferenceID,
				Owner:       owner,
				Action:      "REASSIGNMENT",
				ActorName:   s.displayName(ctx, actorID),
			}, actorID)
		}
		return nil
	})
	return res, err
}

// ProcessLogs returns the audit trail of one process, oldest first.
func (s *WorkflowService) ProcessLogs(ctx context.Context, processID string) ([]models.LogEntry, error) {
	if _, err := s.Store.GetProcess(ctx, processID); err != nil {
		return nil, err
	}
	return s.Store.ListLogs(ctx, processID)
}

func (s *WorkflowService) displayName(ctx context.Context, profileID string) string {
	if profileID == "" {
		return "system"
	}
	p, err := s.Store.GetProfile(ctx, profileID)
	if err != nil || strings.TrimSpace(p.FullName) == "" {
		return profileID
	}
	return p.FullName
}

// appendLog records an audit entry. A failed audit write is logged, not returned.
func (s *WorkflowService) appendLog(ctx context.Context, processID, eventType, description, actorID string) {
	entry := models.LogEntry{
		ID:          newID(),
		ProcessID:   processID,
		EventType:   eventType,
		Description: description,
		CreatedAt:   s.now(),
	}
	if actorID != "" {
		entry.ActorID = &actorID
	}
	if err := s.Store.AppendLog(ctx, entry); err != nil {
		s.Logger.Warn().Err(err).Str("process_id", processID).Str("event_type", eventType).Msg("audit log write failed")
	}
}
