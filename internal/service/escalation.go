package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rapilink/backend/internal/models"
)

// FrontLineLevel is where a freshly mirrored ticket starts.
const FrontLineLevel = 1

const MaxEscalationLevel = 4

const (
	TriggerTimeout = "timeout"
	TriggerManual  = "manual"
)

// NextLevel returns the level a process moves to. Front line (0 or 1) goes straight to
// supervisor level 2; above that each step is +1. The top level has no successor.
func NextLevel(current int) (int, bool) {
	if current >= MaxEscalationLevel {
		return current, false
	}
	if current <= 1 {
		return 2, true
	}
	return current + 1, true
}

func placeholderParticipant(level int) string {
	return fmt.Sprintf("SUPPORT LEVEL %d", level)
}

// isPlaceholderParticipant reports whether id is a support-level pseudo identity the
// engine hands work to when nobody holds that level.
func isPlaceholderParticipant(id string) bool {
	for level := 2; level <= MaxEscalationLevel; level++ {
		if id == placeholderParticipant(level) {
			return true
		}
	}
	return false
}

type EscalationRequest struct {
	WorkItemID      string `json:"-"`
	Reason          string `json:"reason" validate:"required"`
	TargetProfileID string `json:"target_profile_id"`
	Priority        *int   `json:"priority" validate:"omitempty,min=1,max=5"`
	Attachment      string `json:"attachment"`
	ActorID         string `json:"-"`
}

type EscalationResult struct {
	ProcessID     string            `json:"process_id"`
	PreviousLevel int               `json:"previous_level"`
	Level         int               `json:"level"`
	Activity      models.Activity   `json:"activity"`
	WorkItems     []models.WorkItem `json:"work_items"`
	UpstreamOutcome
}

func (s *WorkflowService) EscalateWorkItem(ctx context.Context, req EscalationRequest) (EscalationResult, error) {
	owned, err := s.ownedWorkItem(ctx, req.WorkItemID)
	if err != nil {
		return EscalationResult{}, err
	}
	return s.escalateLocked(ctx, owned, TriggerManual, req)
}

// escalateLocked runs escalate as one unit under the process lock. A failure rolls every
// write back; a ceiling rejection keeps its expiry and audit entry.
func (s *WorkflowService) escalateLocked(ctx context.Context, owned models.OwnedWorkItem, trigger string, req EscalationRequest) (EscalationResult, error) {
	var (
		res     EscalationResult
		ceiling error
	)
	err := s.lockProcess(ctx, owned.Process.ReferenceID, func(ctx context.Context) error {
		var err error
		res, err = s.escalate(ctx, owned, trigger, req)
		if errors.Is(err, ErrEscalationCeiling) {
			ceiling = err
			return nil
		}
		return err
	})
	if err != nil {
		return res, err
	}
	return res, ceiling
}

// escalate must run under the process lock. Process and item state are re-read so a
// concurrent sync or sweep cannot be overwritten.
func (s *WorkflowService) escalate(ctx context.Context, owned models.OwnedWorkItem, trigger string, req EscalationRequest) (EscalationResult, error) {
	proc, err := s.Store.GetProcess(ctx, owned.Process.ID)
	if err != nil {
		return EscalationResult{}, err
	}
	wi, err := s.Store.GetWorkItem(ctx, owned.WorkItem.ID)
	if err != nil {
		return EscalationResult{}, err
	}
	if wi.Status != models.WorkItemPending {
		return EscalationResult{}, fmt.Errorf("%w: %s", ErrInvalidState, wi.Status)
	}
	res := EscalationResult{ProcessID: proc.ID, PreviousLevel: proc.Metadata.CurrentLevel, Level: proc.Metadata.CurrentLevel}
	if proc.IsTerminal() {
		return res, fmt.Errorf("%w: process %s is %s", ErrInvalidState, proc.ID, proc.Status)
	}
	now := s.now()
	log := s.Logger.With().Str("process_id", proc.ID).Str("reference_id", proc.ReferenceID).
		Str("work_item_id", wi.ID).Str("trigger", trigger).Logger()

	level, ok := NextLevel(proc.Metadata.CurrentLevel)
	if !ok {
		if trigger == TriggerTimeout {
			if err := s.Store.SetWorkItemStatus(ctx, wi.ID, models.WorkItemExpired, now); err != nil {
				return res, err
			}
		}
		s.Metrics.ObserveCeiling()
		s.appendLog(ctx, proc.ID, models.EventEscalationLimit,
			fmt.Sprintf("Escalation rejected: already at level %d", proc.Metadata.CurrentLevel), req.ActorID)
		log.Warn().Int("level", proc.Metadata.CurrentLevel).Msg("escalation ceiling reached")
		return res, ErrEscalationCeiling
	}

	var targets []models.Profile
	if req.TargetProfileID != "" {
		p, err := s.Store.GetProfile(ctx, req.TargetProfileID)
		if err != nil {
			return res, fmt.Errorf("target %s: %w", req.TargetProfileID, err)
		}
		targets = []models.Profile{p}
	} else {
		targets, err = s.Store.ProfilesAtLevel(ctx, level)
		if err != nil {
			return res, err
		}
	}

	oldStatus := models.WorkItemReassigned
	if trigger == TriggerTimeout {
		oldStatus = models.WorkItemExpired
	}
	if err := s.Store.SetWorkItemStatus(ctx, wi.ID, oldStatus, now); err != nil {
		return res, err
	}
	// The new level replaces whatever escalation step is still open on the process.
	prevStep, err := s.Store.ActiveActivity(ctx, proc.ID, models.ActivityTypeEscalate)
	switch {
	case err == nil:
		if _, err := s.Store.ClosePendingWorkItems(ctx, prevStep.ID, models.WorkItemCancelled, now); err != nil {
			return res, err
		}
		if err := s.Store.CompleteActivity(ctx, prevStep.ID, now); err != nil {
			return res, err
		}
	case !errors.Is(err, ErrNotFound):
		return res, err
	}

	proc.Metadata.CurrentLevel = level
	proc.Metadata.LastEscalationAt = &now
	proc.Status = models.ProcessEscalated
	proc.UpdatedAt = now
	if err := s.Store.UpdateProcess(ctx, proc); err != nil {
		return res, err
	}
	res.Level = level

	act, err := s.Store.InsertActivity(ctx, models.Activity{
		ID:           newID(),
		ProcessID:    proc.ID,
		Name:         fmt.Sprintf("Escalation Level %d", level),
		Status:       models.ActivityActive,
		ActivityType: models.ActivityTypeEscalate,
		StartedAt:    now,
	})
	if err != nil {
		return res, err
	}
	res.Activity = act

	assignees := make([]models.WorkItem, 0, len(targets))
	for _, p := range targets {
		assignees = append(assignees, models.WorkItem{ParticipantID: p.ID, ParticipantType: models.ParticipantType(level)})
	}
	if len(assignees) == 0 {
		assignees = append(assignees, models.WorkItem{ParticipantID: placeholderParticipant(level), ParticipantType: models.ParticipantPlaceholder})
	}
	for _, a := range assignees {
		a.ID = newID()
		a.ActivityID = act.ID
		a.Status = models.WorkItemPending
		a.Deadline = now.Add(s.Options.EscalationSLA)
		a.CreatedAt = now
		a.UpdatedAt = now
		created, err := s.Store.InsertWorkItem(ctx, a)
		if err != nil {
			return res, err
		}
		res.WorkItems = append(res.WorkItems, created)
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "no reason given"
	}
	s.appendLog(ctx, proc.ID, models.EventEscalation,
		fmt.Sprintf("Escalated to level %d (%s): %s", level, trigger, reason), req.ActorID)
	s.Metrics.ObserveEscalation(trigger, level)
	log.Info().Int("level", level).Int("assignees", len(res.WorkItems)).Msg("process escalated")

	if proc.ReferenceID != "" && len(targets) == 1 {
		actor := "system"
		if req.ActorID != "" {
			actor = s.displayName(ctx, req.ActorID)
		}
		res.UpstreamOutcome = s.pushOrDiverge(ctx, proc, TicketUpdate{
			ReferenceID: proc.ReferenceID,
			Owner:       &targets[0],
			Action:      "ESCALATION",
			Level:       level,
			ActorName:   actor,
			Reason:      reason,
			Priority:    req.Priority,
			Attachment:  req.Attachment,
		}, req.ActorID)
	}
	return res, nil
}

type SweepReport struct {
	Overdue    int `json:"overdue"`
	Escalated  int `json:"escalated"`
	Expired    int `json:"expired"`
	Ceiling    int `json:"ceiling"`
	Failed     int `json:"failed"`
	AutoClosed int `json:"auto_closed"`
}

// CheckTimeouts escalates every pending work item past its deadline, then closes resolved
// processes that have been idle for AutoCloseAfter. Deadlines are compared against the
// time read at sweep start.
func (s *WorkflowService) CheckTimeouts(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	now := s.now()
	items, err := s.Store.OverdueWorkItems(ctx, now)
	if err != nil {
		return report, err
	}
	report.Overdue = len(items)

	escalated := map[string]bool{}
	for _, it := range items {
		log := s.Logger.With().Str("work_item_id", it.WorkItem.ID).Str("reference_id", it.Process.ReferenceID).Logger()
		if escalated[it.Process.ID] {
			err := s.lockProcess(ctx, it.Process.ReferenceID, func(ctx context.Context) error {
				return s.expireIfPending(ctx, it.WorkItem.ID, now)
			})
			if err != nil {
				report.Failed++
				log.Warn().Err(err).Msg("expire failed")
				continue
			}
			report.Expired++
			continue
		}

		_, err := s.escalateLocked(ctx, it, TriggerTimeout, EscalationRequest{
			WorkItemID: it.WorkItem.ID,
			Reason:     fmt.Sprintf("SLA deadline %s exceeded", it.WorkItem.Deadline.UTC().Format("2006-01-02 15:04 MST")),
		})
		switch {
		case err == nil:
			report.Escalated++
			escalated[it.Process.ID] = true
		case errors.Is(err, ErrEscalationCeiling):
			report.Ceiling++
		case errors.Is(err, ErrInvalidState):
			log.Debug().Err(err).Msg("overdue item no longer escalatable")
		default:
			report.Failed++
			log.Warn().Err(err).Msg("escalation failed")
		}
	}

	if err := s.autoClose(ctx, now, &report); err != nil {
		return report, err
	}
	if report.Overdue > 0 || report.AutoClosed > 0 {
		s.Logger.Info().Int("escalated", report.Escalated).Int("expired", report.Expired).Int("ceiling", report.Ceiling).
			Int("failed", report.Failed).Int("auto_closed", report.AutoClosed).Msg("timeout sweep finished")
	}
	return report, nil
}

func (s *WorkflowService) expireIfPending(ctx context.Context, id string, now time.Time) error {
	wi, err := s.Store.GetWorkItem(ctx, id)
	if err != nil {
		return err
	}
	if wi.Status != models.WorkItemPending {
		return nil
	}
	return s.Store.SetWorkItemStatus(ctx, id, models.WorkItemExpired, now)
}

func (s *WorkflowService) autoClose(ctx context.Context, now time.Time, report *SweepReport) error {
	after := s.Options.AutoCloseAfter
	if after <= 0 {
		after = 24 * time.Hour
	}
	cutoff := now.Add(-after)
	procs, err := s.Store.StaleResolvedProcesses(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, p := range procs {
		closed := false
		err := s.lockProcess(ctx, p.ReferenceID, func(ctx context.Context) error {
			cur, err := s.Store.GetProcess(ctx, p.ID)
			if err != nil {
				return err
			}
			if cur.Status != models.ProcessResolved || cur.UpdatedAt.After(cutoff) {
				return nil
			}
			cur.Status = models.ProcessClosed
			cur.UpdatedAt = now
			if err := s.Store.UpdateProcess(ctx, cur); err != nil {
				return err
			}
			closed = true
			return nil
		})
		if err != nil {
			report.Failed++
			s.Logger.Warn().Err(err).Str("process_id", p.ID).Msg("auto-close failed")
			continue
		}
		if closed {
			report.AutoClosed++
			s.Metrics.ObserveAutoClose()
			s.appendLog(ctx, p.ID, models.EventAutoClose,
				fmt.Sprintf("Closed after %s in resolved state without activity", after), "")
		}
	}
	return nil
}
