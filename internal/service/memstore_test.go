package service

import (
	"context"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/rapilink/backend/internal/models"
	"github.com/rapilink/backend/internal/wisphub"
)

// memStore is an in-memory Store with the same upsert semantics as the Postgres store.
type memStore struct {
	mu            sync.Mutex
	profiles      []models.Profile
	processes     map[string]models.Process
	activities    map[string]models.Activity
	items         map[string]models.WorkItem
	logs          []models.LogEntry
	neighborhoods map[string]models.Neighborhood
	visits        map[string]int
	writes        int

	failWorkItemInsert error
}

func newMemStore(profiles ...models.Profile) *memStore {
	return &memStore{
		profiles:      profiles,
		processes:     map[string]models.Process{},
		activities:    map[string]models.Activity{},
		items:         map[string]models.WorkItem{},
		neighborhoods: map[string]models.Neighborhood{},
		visits:        map[string]int{},
	}
}

// WithReferenceLock restores the workflow tables when fn fails, like the transaction the
// Postgres store runs fn in.
func (m *memStore) WithReferenceLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	processes := copyMap(m.processes)
	activities := copyMap(m.activities)
	items := copyMap(m.items)
	logs := append([]models.LogEntry(nil), m.logs...)
	m.mu.Unlock()

	err := fn(ctx)
	if err != nil {
		m.mu.Lock()
		m.processes, m.activities, m.items, m.logs = processes, activities, items, logs
		m.mu.Unlock()
	}
	return err
}

func copyMap[V any](in map[string]V) map[string]V {
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m *memStore) ListProfiles(_ context.Context) ([]models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Profile(nil), m.profiles...), nil
}

func (m *memStore) GetProfile(_ context.Context, id string) (models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if p.ID == id {
			return p, nil
		}
	}
	return models.Profile{}, ErrNotFound
}

func (m *memStore) ProfilesAtLevel(_ context.Context, level int) ([]models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Profile
	for _, p := range m.profiles {
		if p.OperationalLevel == level {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) GetProcess(_ context.Context, id string) (models.Process, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.processes[id]
	if !ok {
		return models.Process{}, ErrNotFound
	}
	return p, nil
}

func (m *memStore) GetProcessByReference(_ context.Context, ref string) (models.Process, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.processes {
		if p.ReferenceID == ref {
			return p, nil
		}
	}
	return models.Process{}, ErrNotFound
}

func (m *memStore) InsertProcess(_ context.Context, p models.Process) (models.Process, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ReferenceID != "" {
		for _, existing := range m.processes {
			if existing.ReferenceID == p.ReferenceID {
				return models.Process{}, ErrConflict
			}
		}
	}
	m.processes[p.ID] = p
	m.writes++
	return p, nil
}

func (m *memStore) UpsertProcess(_ context.Context, p models.Process) (models.Process, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.processes {
		if existing.ReferenceID != p.ReferenceID {
			continue
		}
		if existing.Title == p.Title && existing.Status == p.Status && reflect.DeepEqual(existing.Metadata, p.Metadata) {
			return existing, nil
		}
		existing.Title = p.Title
		existing.Status = p.Status
		existing.Metadata = p.Metadata
		existing.UpdatedAt = p.UpdatedAt
		m.processes[id] = existing
		m.writes++
		return existing, nil
	}
	m.processes[p.ID] = p
	m.writes++
	return p, nil
}

func (m *memStore) UpdateProcess(_ context.Context, p models.Process) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.processes[p.ID]; !ok {
		return ErrNotFound
	}
	m.processes[p.ID] = p
	m.writes++
	return nil
}

func (m *memStore) StaleResolvedProcesses(_ context.Context, before time.Time) ([]models.Process, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Process
	for _, p := range m.processes {
		if p.Status == models.ProcessResolved && !p.UpdatedAt.After(before) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) GetActivity(_ context.Context, id string) (models.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.activities[id]
	if !ok {
		return models.Activity{}, ErrNotFound
	}
	return a, nil
}

func (m *memStore) ActiveActivity(_ context.Context, processID, activityType string) (models.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.activities {
		if a.ProcessID == processID && a.ActivityType == activityType && a.Status == models.ActivityActive {
			return a, nil
		}
	}
	return models.Activity{}, ErrNotFound
}

func (m *memStore) InsertActivity(_ context.Context, a models.Activity) (models.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activities[a.ID] = a
	m.writes++
	return a, nil
}

func (m *memStore) UpsertActivity(_ context.Context, a models.Activity) (models.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.activities {
		if existing.ProcessID == a.ProcessID && existing.ActivityType == a.ActivityType && existing.Status == models.ActivityActive {
			return existing, nil
		}
	}
	m.activities[a.ID] = a
	m.writes++
	return a, nil
}

func (m *memStore) CompleteActivity(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.activities[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = models.ActivityCompleted
	a.CompletedAt = &at
	m.activities[id] = a
	m.writes++
	return nil
}

func (m *memStore) GetWorkItem(_ context.Context, id string) (models.WorkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.items[id]
	if !ok {
		return models.WorkItem{}, ErrNotFound
	}
	return w, nil
}

func (m *memStore) ActivityWorkItems(_ context.Context, activityID string) ([]models.WorkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.WorkItem
	for _, w := range m.items {
		if w.ActivityID == activityID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) InsertWorkItem(_ context.Context, w models.WorkItem) (models.WorkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWorkItemInsert != nil {
		return models.WorkItem{}, m.failWorkItemInsert
	}
	for _, existing := range m.items {
		if existing.ActivityID == w.ActivityID && existing.ParticipantID == w.ParticipantID {
			return models.WorkItem{}, ErrConflict
		}
	}
	m.items[w.ID] = w
	m.writes++
	return w, nil
}

func (m *memStore) UpsertWorkItem(_ context.Context, w models.WorkItem) (models.WorkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.items {
		if existing.ActivityID != w.ActivityID || existing.ParticipantID != w.ParticipantID {
			continue
		}
		switch existing.Status {
		case models.WorkItemCancelled, models.WorkItemReassigned:
			existing.Status = models.WorkItemPending
			existing.Deadline = w.Deadline
			m.writes++
		}
		existing.ParticipantType = w.ParticipantType
		existing.UpdatedAt = w.UpdatedAt
		m.items[id] = existing
		return existing, nil
	}
	m.items[w.ID] = w
	m.writes++
	return w, nil
}

func (m *memStore) SetWorkItemStatus(_ context.Context, id, status string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	w.Status = status
	w.UpdatedAt = at
	m.items[id] = w
	m.writes++
	return nil
}

func (m *memStore) SetWorkItemParticipant(_ context.Context, id, participantID, participantType string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	for otherID, other := range m.items {
		if otherID != id && other.ActivityID == w.ActivityID && other.ParticipantID == participantID {
			return ErrConflict
		}
	}
	w.ParticipantID = participantID
	w.ParticipantType = participantType
	w.UpdatedAt = at
	m.items[id] = w
	m.writes++
	return nil
}

func (m *memStore) SupersedeWorkItems(_ context.Context, activityID, keep string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, w := range m.items {
		if w.ActivityID == activityID && w.ParticipantID != keep && w.Status == models.WorkItemPending {
			w.Status = models.WorkItemReassigned
			w.UpdatedAt = at
			m.items[id] = w
			n++
		}
	}
	m.writes += int(n)
	return n, nil
}

func (m *memStore) ClosePendingWorkItems(_ context.Context, activityID, status string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, w := range m.items {
		if w.ActivityID == activityID && w.Status == models.WorkItemPending {
			w.Status = status
			w.UpdatedAt = at
			m.items[id] = w
			n++
		}
	}
	m.writes += int(n)
	return n, nil
}

func (m *memStore) owned(filter func(models.WorkItem) bool) []models.OwnedWorkItem {
	var out []models.OwnedWorkItem
	for _, w := range m.items {
		if !filter(w) {
			continue
		}
		a := m.activities[w.ActivityID]
		out = append(out, models.OwnedWorkItem{WorkItem: w, Activity: a, Process: m.processes[a.ProcessID]})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].WorkItem.Deadline.Equal(out[j].WorkItem.Deadline) {
			return out[i].WorkItem.Deadline.Before(out[j].WorkItem.Deadline)
		}
		return out[i].WorkItem.ID < out[j].WorkItem.ID
	})
	return out
}

func (m *memStore) PendingWorkItemsFor(_ context.Context, participantID string) ([]models.OwnedWorkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owned(func(w models.WorkItem) bool {
		return w.ParticipantID == participantID && w.Status == models.WorkItemPending
	}), nil
}

func (m *memStore) OverdueWorkItems(_ context.Context, now time.Time) ([]models.OwnedWorkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owned(func(w models.WorkItem) bool {
		return w.Status == models.WorkItemPending && w.Deadline.Before(now)
	}), nil
}

func (m *memStore) AppendLog(_ context.Context, e models.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, e)
	return nil
}

func (m *memStore) ListLogs(_ context.Context, processID string) ([]models.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LogEntry
	for _, e := range m.logs {
		if e.ProcessID == processID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) ClientVisitCount(_ context.Context, clientID string, _ int, _ time.Month) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.visits[clientID], nil
}

func (m *memStore) ListNeighborhoods(_ context.Context) ([]models.Neighborhood, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Neighborhood, 0, len(m.neighborhoods))
	for _, n := range m.neighborhoods {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) GetNeighborhood(_ context.Context, id string) (models.Neighborhood, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.neighborhoods[id]
	if !ok {
		return models.Neighborhood{}, ErrNotFound
	}
	return n, nil
}

func (m *memStore) InsertNeighborhood(_ context.Context, n models.Neighborhood) (models.Neighborhood, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.neighborhoods[n.ID] = n
	return n, nil
}

func (m *memStore) UpdateNeighborhood(_ context.Context, n models.Neighborhood) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.neighborhoods[n.ID]; !ok {
		return ErrNotFound
	}
	m.neighborhoods[n.ID] = n
	return nil
}

func (m *memStore) DeleteNeighborhood(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.neighborhoods[id]; !ok {
		return ErrNotFound
	}
	delete(m.neighborhoods, id)
	return nil
}

// helpers for assertions

func (m *memStore) itemsFor(participantID string) []models.WorkItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.WorkItem
	for _, w := range m.items {
		if w.ParticipantID == participantID {
			out = append(out, w)
		}
	}
	return out
}

func (m *memStore) logsOfType(eventType string) []models.LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LogEntry
	for _, e := range m.logs {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fakeUpstream struct {
	mu        sync.Mutex
	staff     []wisphub.Staff
	pages     [][]wisphub.Ticket
	pageErr   map[int]error
	details   map[string]wisphub.Ticket
	raw       map[string]map[string]any
	updates   map[string]map[string]any
	barrios   []wisphub.ClientNeighborhood
	updateErr error
	pageCalls int

	refreshedStaff []wisphub.Staff
	invalidations  int
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		pageErr: map[int]error{},
		details: map[string]wisphub.Ticket{},
		raw:     map[string]map[string]any{},
		updates: map[string]map[string]any{},
	}
}

func (f *fakeUpstream) Staff(_ context.Context) ([]wisphub.Staff, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.staff, nil
}

func (f *fakeUpstream) InvalidateStaff() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidations++
	if f.refreshedStaff != nil {
		f.staff = f.refreshedStaff
	}
}

func (f *fakeUpstream) TicketsPage(_ context.Context, page int, _ wisphub.TicketFilter) (wisphub.TicketPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageCalls++
	if err := f.pageErr[page]; err != nil {
		return wisphub.TicketPage{}, err
	}
	total := 0
	for _, p := range f.pages {
		total += len(p)
	}
	if page > len(f.pages) {
		return wisphub.TicketPage{Count: total}, nil
	}
	return wisphub.TicketPage{Results: f.pages[page-1], Count: total}, nil
}

func (f *fakeUpstream) TicketRaw(_ context.Context, id string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.raw[id]
	if !ok {
		return nil, wisphub.ErrNotFound
	}
	return raw, nil
}

func (f *fakeUpstream) TicketDetail(_ context.Context, id string) (wisphub.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.details[id]
	if !ok {
		return wisphub.Ticket{}, wisphub.ErrNotFound
	}
	return t, nil
}

func (f *fakeUpstream) UpdateTicket(_ context.Context, id string, payload map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates[id] = payload
	return nil
}

func (f *fakeUpstream) ClientNeighborhoods(_ context.Context) ([]wisphub.ClientNeighborhood, error) {
	return f.barrios, nil
}
