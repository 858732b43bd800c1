package service

import (
	"context"
	"sort"
	"time"

	"github.com/rapilink/backend/internal/models"
	"github.com/rapilink/backend/internal/wisphub"
)

// recurrencePenalty is added per visit beyond the first in the same calendar month.
const recurrencePenalty = 60

func PriorityWeight(p wisphub.Priority) int {
	switch p {
	case wisphub.PriorityLow:
		return 5
	case wisphub.PriorityHigh:
		return 50
	case wisphub.PriorityVeryHigh:
		return 100
	case wisphub.PriorityCritical:
		return 150
	default:
		return 20
	}
}

// Score orders work: priority weight plus whole hours open plus a penalty for repeat
// visits to the same client this month.
func Score(p wisphub.Priority, openedAt, now time.Time, monthlyVisits int) int {
	hours := 0
	if !openedAt.IsZero() && now.After(openedAt) {
		hours = int(now.Sub(openedAt).Hours())
	}
	repeats := monthlyVisits - 1
	if repeats < 0 {
		repeats = 0
	}
	return PriorityWeight(p) + hours + repeats*recurrencePenalty
}

type QueueEntry struct {
	Item         models.OwnedWorkItem `json:"item"`
	Score        int                  `json:"score"`
	Priority     int                  `json:"priority"`
	HoursOpen    int                  `json:"hours_open"`
	ClientVisits int                  `json:"client_visits"`
}

// ScoreQueue returns the user's pending work ordered by score, highest first. Ties go to
// the earlier deadline.
func (s *WorkflowService) ScoreQueue(ctx context.Context, userID string) ([]QueueEntry, error) {
	items, err := s.Store.PendingWorkItemsFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	visits := map[string]int{}
	out := make([]QueueEntry, 0, len(items))
	for _, it := range items {
		meta := it.Process.Metadata
		priority := wisphub.ParsePriority(meta.Priority)
		opened := it.Process.CreatedAt
		if meta.OpenedAt != nil {
			opened = *meta.OpenedAt
		}

		count := 0
		if meta.ClientID != "" {
			cached, ok := visits[meta.ClientID]
			if !ok {
				cached, err = s.Store.ClientVisitCount(ctx, meta.ClientID, now.Year(), now.Month())
				if err != nil {
					s.Logger.Warn().Err(err).Str("client_id", meta.ClientID).Msg("visit count lookup failed")
					cached = 0
				}
				visits[meta.ClientID] = cached
			}
			count = cached
		}

		hours := 0
		if !opened.IsZero() && now.After(opened) {
			hours = int(now.Sub(opened).Hours())
		}
		out = append(out, QueueEntry{
			Item:         it,
			Score:        Score(priority, opened, now, count),
			Priority:     int(priority),
			HoursOpen:    hours,
			ClientVisits: count,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Item.WorkItem.Deadline.Before(out[j].Item.WorkItem.Deadline)
	})
	return out, nil
}
