package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rapilink/backend/internal/identity"
	"github.com/rapilink/backend/internal/models"
	"github.com/rapilink/backend/internal/wisphub"
)

const (
	SyncModePersonal = "personal"
	SyncModeGlobal   = "global"
)

type SyncReport struct {
	Mode        string `json:"mode"`
	Owner       string `json:"owner,omitempty"`
	Pages       int    `json:"pages"`
	Fetched     int    `json:"fetched"`
	Matched     int    `json:"matched"`
	Mirrored    int    `json:"mirrored"`
	Failed      int    `json:"failed"`
	Unassigned  int    `json:"unassigned,omitempty"`
	Unmatched   int    `json:"unmatched,omitempty"`
	NeedsReview int    `json:"needs_review,omitempty"`
	Purged      int    `json:"purged,omitempty"`
	Kept        int    `json:"kept,omitempty"`
	Partial     bool   `json:"partial,omitempty"`
}

type SyncProgress struct {
	Phase     string `json:"phase"`
	Page      int    `json:"page"`
	Fetched   int    `json:"fetched"`
	Total     int    `json:"total"`
	Processed int    `json:"processed"`
}

// fetchWindow pages through upstream tickets created within the last days, keeping those
// accepted by keep. A page failure after the first page returns what was read so far along
// with the error.
func (s *WorkflowService) fetchWindow(ctx context.Context, days int, keep func(wisphub.Ticket) bool, report *SyncReport, onProgress func(SyncProgress)) ([]wisphub.Ticket, error) {
	end := s.now()
	filter := wisphub.TicketFilter{StartDate: end.AddDate(0, 0, -days), EndDate: end}
	maxPages := s.Options.MaxPages
	if maxPages <= 0 {
		maxPages = 50
	}

	var out []wisphub.Ticket
	for page := 1; page <= maxPages; page++ {
		if page > 1 && s.Options.PageDelay > 0 {
			timer := time.NewTimer(s.Options.PageDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return out, ctx.Err()
			case <-timer.C:
			}
		}
		res, err := s.Upstream.TicketsPage(ctx, page, filter)
		if err != nil {
			return out, fmt.Errorf("%w: tickets page %d: %v", ErrUpstreamUnavailable, page, err)
		}
		report.Pages++
		report.Fetched += len(res.Results)
		for _, t := range res.Results {
			if keep == nil || keep(t) {
				out = append(out, t)
			}
		}
		if onProgress != nil {
			onProgress(SyncProgress{Phase: "fetch", Page: page, Fetched: report.Fetched, Total: res.Count})
		}
		if len(res.Results) == 0 || (res.Count > 0 && report.Fetched >= res.Count) {
			return out, nil
		}
		if page == maxPages {
			s.Logger.Warn().Int("max_pages", maxPages).Str("mode", report.Mode).Msg("upstream page ceiling reached")
		}
	}
	return out, nil
}

// SyncMyTickets mirrors the tickets upstream assigns to the user and purges pending items
// for tickets the user no longer owns.
func (s *WorkflowService) SyncMyTickets(ctx context.Context, userID string, forceFull bool) (SyncReport, error) {
	report := SyncReport{Mode: SyncModePersonal}
	profile, err := s.Store.GetProfile(ctx, userID)
	if err != nil {
		return report, err
	}
	ident := profile.UpstreamIdentity()
	if ident == "" {
		return report, fmt.Errorf("%w: profile %s has no upstream mapping", ErrUnresolvedIdentity, userID)
	}
	name, err := s.staffName(ctx, ident)
	if err != nil {
		return report, err
	}
	report.Owner = name
	log := s.Logger.With().Str("user_id", userID).Str("technician", name).Logger()

	days := s.Options.LookbackDays
	if forceFull {
		days = s.Options.FullLookbackDays
	}
	want := identity.Normalize(name)
	tickets, fetchErr := s.fetchWindow(ctx, days, func(t wisphub.Ticket) bool {
		return identity.Normalize(t.Technician) == want
	}, &report, nil)
	if fetchErr != nil {
		if report.Pages == 0 {
			return report, fetchErr
		}
		report.Partial = true
		log.Warn().Err(fetchErr).Int("pages", report.Pages).Msg("ticket listing interrupted, purge skipped")
	}
	report.Matched = len(tickets)

	seen := make(map[string]bool, len(tickets))
	for _, t := range tickets {
		seen[t.ID] = true
		err := s.lockProcess(ctx, t.ID, func(ctx context.Context) error {
			_, err := s.mirror(ctx, t, &profile, nil)
			return err
		})
		if err != nil {
			report.Failed++
			s.Metrics.ObserveSync(SyncModePersonal, "failed")
			log.Warn().Err(err).Str("reference_id", t.ID).Msg("mirror failed")
			continue
		}
		report.Mirrored++
		s.Metrics.ObserveSync(SyncModePersonal, "mirrored")
	}

	if report.Partial {
		return report, nil
	}
	if err := s.purgeStale(ctx, profile, name, seen, &report); err != nil {
		return report, err
	}
	log.Info().Int("mirrored", report.Mirrored).Int("purged", report.Purged).Int("kept", report.Kept).Msg("personal sync finished")
	return report, nil
}

// staffRefresher is implemented by upstream clients that cache the staff directory.
type staffRefresher interface {
	InvalidateStaff()
}

// staffName resolves the declared identity against the staff directory. A miss refreshes a
// cached directory once, so staff added upstream since the last fetch are found.
func (s *WorkflowService) staffName(ctx context.Context, ident string) (string, error) {
	name, err := s.lookupStaffName(ctx, ident)
	if err != nil || name != "" {
		return name, err
	}
	if refresher, ok := s.Upstream.(staffRefresher); ok {
		refresher.InvalidateStaff()
		if name, err = s.lookupStaffName(ctx, ident); err != nil || name != "" {
			return name, err
		}
	}
	return "", fmt.Errorf("%w: %q is not in the staff directory", ErrUnresolvedIdentity, ident)
}

func (s *WorkflowService) lookupStaffName(ctx context.Context, ident string) (string, error) {
	staff, err := s.Upstream.Staff(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: staff directory: %v", ErrUpstreamUnavailable, err)
	}
	return identity.StaffDisplayName(ident, staff), nil
}

// purgeStale re-checks every pending sync or escalation item of the user whose ticket was
// not in the listing, since the lookback window can miss older tickets the user still owns.
// Manual steps have no upstream owner and are left alone.
func (s *WorkflowService) purgeStale(ctx context.Context, profile models.Profile, ownerName string, seen map[string]bool, report *SyncReport) error {
	items, err := s.Store.PendingWorkItemsFor(ctx, profile.ID)
	if err != nil {
		return err
	}
	for _, it := range items {
		ref := it.Process.ReferenceID
		typ := it.Activity.ActivityType
		if ref == "" || seen[ref] || (typ != models.ActivityTypeSync && typ != models.ActivityTypeEscalate) {
			continue
		}
		owner, err := s.ticketOwner(ctx, ref, ownerName)
		if err != nil {
			report.Kept++
			s.Logger.Warn().Err(err).Str("reference_id", ref).Str("work_item_id", it.WorkItem.ID).Msg("ownership check failed, keeping work item")
			continue
		}
		keep := owner == ownerSelf
		if owner == ownerOther && typ == models.ActivityTypeEscalate {
			// A fanned out escalation never named its assignees upstream, so upstream
			// still showing someone else says nothing about them.
			if keep, err = s.sharedEscalation(ctx, it.Activity.ID); err != nil {
				report.Kept++
				s.Logger.Warn().Err(err).Str("work_item_id", it.WorkItem.ID).Msg("escalation lookup failed, keeping work item")
				continue
			}
		}
		if keep {
			report.Kept++
			continue
		}
		purged := false
		err = s.lockProcess(ctx, ref, func(ctx context.Context) error {
			var err error
			purged, err = s.cancelStale(ctx, it)
			return err
		})
		if err != nil {
			s.Logger.Warn().Err(err).Str("work_item_id", it.WorkItem.ID).Msg("purge failed")
			continue
		}
		if purged {
			report.Purged++
			s.Metrics.ObservePurge()
		}
	}
	return nil
}

func (s *WorkflowService) sharedEscalation(ctx context.Context, activityID string) (bool, error) {
	items, err := s.Store.ActivityWorkItems(ctx, activityID)
	if err != nil {
		return false, err
	}
	return len(items) > 1, nil
}

// cancelStale cancels the item if it is still pending. An escalation step left without a
// pending item is completed so the ticket's next owner can be mirrored in.
func (s *WorkflowService) cancelStale(ctx context.Context, it models.OwnedWorkItem) (bool, error) {
	wi, err := s.Store.GetWorkItem(ctx, it.WorkItem.ID)
	if err != nil {
		return false, err
	}
	if wi.Status != models.WorkItemPending {
		return false, nil
	}
	now := s.now()
	if err := s.Store.SetWorkItemStatus(ctx, wi.ID, models.WorkItemCancelled, now); err != nil {
		return false, err
	}
	if it.Activity.ActivityType != models.ActivityTypeEscalate {
		return true, nil
	}
	siblings, err := s.Store.ActivityWorkItems(ctx, wi.ActivityID)
	if err != nil {
		return false, err
	}
	for _, sib := range siblings {
		if sib.ID != wi.ID && sib.Status == models.WorkItemPending {
			return true, nil
		}
	}
	return true, s.Store.CompleteActivity(ctx, wi.ActivityID, now)
}

type ticketOwnership int

const (
	ownerGone ticketOwnership = iota
	ownerSelf
	ownerOther
)

// ticketOwner fetches one ticket live. A ticket upstream no longer knows, or one in a
// terminal state, is gone.
func (s *WorkflowService) ticketOwner(ctx context.Context, referenceID, ownerName string) (ticketOwnership, error) {
	t, err := s.Upstream.TicketDetail(ctx, referenceID)
	if errors.Is(err, wisphub.ErrNotFound) {
		return ownerGone, nil
	}
	if err != nil {
		return ownerGone, fmt.Errorf("%w: ticket %s: %v", ErrUpstreamUnavailable, referenceID, err)
	}
	if t.IsTerminal() {
		return ownerGone, nil
	}
	if identity.Normalize(t.Technician) == identity.Normalize(ownerName) {
		return ownerSelf, nil
	}
	return ownerOther, nil
}

// VerifyOwnership reports whether the ticket is still open upstream and assigned to
// ownerName.
func (s *WorkflowService) VerifyOwnership(ctx context.Context, referenceID, ownerName string) (bool, error) {
	owner, err := s.ticketOwner(ctx, referenceID, ownerName)
	return owner == ownerSelf, err
}

// SyncGlobalTickets mirrors every ticket in the window, choosing each owner through the
// identity resolver. It never purges.
func (s *WorkflowService) SyncGlobalTickets(ctx context.Context, daysBack int, onProgress func(SyncProgress)) (SyncReport, error) {
	report := SyncReport{Mode: SyncModeGlobal}
	if daysBack <= 0 {
		daysBack = s.Options.LookbackDays
	}
	profiles, err := s.Store.ListProfiles(ctx)
	if err != nil {
		return report, err
	}
	tickets, fetchErr := s.fetchWindow(ctx, daysBack, nil, &report, onProgress)
	if fetchErr != nil {
		if report.Pages == 0 {
			return report, fetchErr
		}
		report.Partial = true
		s.Logger.Warn().Err(fetchErr).Int("pages", report.Pages).Msg("global ticket listing interrupted")
	}
	report.Matched = len(tickets)

	for i, t := range tickets {
		outcome, err := s.mirrorResolved(ctx, t, profiles)
		if err != nil {
			report.Failed++
			s.Metrics.ObserveSync(SyncModeGlobal, "failed")
			s.Logger.Warn().Err(err).Str("reference_id", t.ID).Msg("mirror failed")
		} else {
			switch outcome {
			case "mirrored":
				report.Mirrored++
			case "unassigned":
				report.Unassigned++
			case "unmatched":
				report.Unmatched++
			case "review":
				report.NeedsReview++
			}
			s.Metrics.ObserveSync(SyncModeGlobal, outcome)
		}
		if onProgress != nil {
			onProgress(SyncProgress{Phase: "mirror", Page: report.Pages, Fetched: report.Fetched, Total: len(tickets), Processed: i + 1})
		}
	}
	s.Logger.Info().Int("mirrored", report.Mirrored).Int("unmatched", report.Unmatched).
		Int("needs_review", report.NeedsReview).Int("failed", report.Failed).Msg("global sync finished")
	return report, nil
}

func (s *WorkflowService) mirrorResolved(ctx context.Context, t wisphub.Ticket, profiles []models.Profile) (string, error) {
	ref := identity.TechnicianRef{ID: t.TechnicianID, Username: t.TechnicianUsername, Name: t.Technician}
	var (
		owner   *models.Profile
		review  *models.OwnerReview
		outcome = "mirrored"
	)
	if ref.Empty() || (identity.IsUnassigned(ref.Name) && ref.ID == 0 && ref.Username == "") {
		outcome = "unassigned"
	} else {
		m, ok := s.resolver().Resolve(ref, profiles)
		if !ok {
			s.Logger.Info().Str("reference_id", t.ID).Str("technician", t.Technician).Msg("technician not matched to a profile, ticket skipped")
			return "unmatched", nil
		}
		if m.Confidence < identity.ConfidenceMedium && !s.Options.AutoApplyLowConfidence {
			review = &models.OwnerReview{CandidateID: m.Profile.ID, Rule: m.Rule, Technician: t.Technician}
			outcome = "review"
		} else {
			owner = &m.Profile
		}
	}
	err := s.lockProcess(ctx, t.ID, func(ctx context.Context) error {
		_, err := s.mirror(ctx, t, owner, review)
		return err
	})
	return outcome, err
}

// SyncWithWispHub runs the caller's personal sync followed by a timeout sweep.
func (s *WorkflowService) SyncWithWispHub(ctx context.Context, userID string, forceFull bool) (SyncReport, SweepReport, error) {
	report, err := s.SyncMyTickets(ctx, userID, forceFull)
	if err != nil {
		return report, SweepReport{}, err
	}
	sweep, err := s.CheckTimeouts(ctx)
	return report, sweep, err
}
