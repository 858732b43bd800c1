package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapilink/backend/internal/models"
)

func rawTicket(id string) map[string]any {
	return map[string]any{
		"id_ticket":   id,
		"asunto":      "Sin servicio",
		"descripcion": "Cliente sin internet",
		"prioridad":   float64(2),
		"estado":      map[string]any{"id": float64(1), "nombre": "Nuevo"},
		"servicio":    map[string]any{"id_servicio": float64(881)},
		"tecnico":     map[string]any{"id": float64(7)},
	}
}

func TestNextLevel(t *testing.T) {
	cases := []struct {
		current int
		next    int
		ok      bool
	}{
		{0, 2, true},
		{1, 2, true},
		{2, 3, true},
		{3, 4, true},
		{4, 4, false},
		{7, 7, false},
	}
	for _, c := range cases {
		next, ok := NextLevel(c.current)
		assert.Equal(t, c.next, next, "level %d", c.current)
		assert.Equal(t, c.ok, ok, "level %d", c.current)
	}
}

func TestCheckTimeoutsEscalatesThroughLevels(t *testing.T) {
	store := newMemStore(mario, sofia)
	up := newFakeUpstream()
	up.staff = directory
	up.raw["800"] = rawTicket("800")
	svc, clock := newTestService(store, up)
	ctx := context.Background()

	mirrored, err := svc.MirrorTicket(ctx, openTicket("800", "Mario Vasquez"), &mario)
	require.NoError(t, err)

	clock.advance(25 * time.Hour)
	report, err := svc.CheckTimeouts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Escalated)

	proc, err := store.GetProcess(ctx, mirrored.Process.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, proc.Metadata.CurrentLevel, "front line jumps straight to level 2")
	assert.Equal(t, models.ProcessEscalated, proc.Status)
	require.NotNil(t, proc.Metadata.LastEscalationAt)

	old, err := store.GetWorkItem(ctx, mirrored.WorkItem.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemExpired, old.Status)

	supItems := store.itemsFor(sofia.ID)
	require.Len(t, supItems, 1)
	assert.Equal(t, models.WorkItemPending, supItems[0].Status)
	assert.Equal(t, models.ParticipantSupervisor, supItems[0].ParticipantType)
	assert.Equal(t, clock.t.Add(svc.Options.EscalationSLA), supItems[0].Deadline)

	payload := up.updates["800"]
	require.NotNil(t, payload)
	assert.Equal(t, 21, payload["tecnico"])
	assert.Equal(t, "881", payload["servicio"])
	assert.Contains(t, payload["descripcion"], "--- ESCALATION (LEVEL 2) ---")

	escalations := store.logsOfType(models.EventEscalation)
	require.Len(t, escalations, 1)
	assert.Contains(t, escalations[0].Description, "level 2")

	// Nobody sits at level 3, so the next step goes to the placeholder.
	clock.advance(5 * time.Hour)
	report, err = svc.CheckTimeouts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Escalated)

	proc, err = store.GetProcess(ctx, mirrored.Process.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, proc.Metadata.CurrentLevel, "level 2 advances by one")

	placeholder := store.itemsFor("SUPPORT LEVEL 3")
	require.Len(t, placeholder, 1)
	assert.Equal(t, models.ParticipantPlaceholder, placeholder[0].ParticipantType)

	sup, err := store.GetWorkItem(ctx, supItems[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemExpired, sup.Status)
	act, err := store.GetActivity(ctx, supItems[0].ActivityID)
	require.NoError(t, err)
	assert.Equal(t, models.ActivityCompleted, act.Status)
}

func TestEscalationFansOutToEveryoneAtLevel(t *testing.T) {
	other := models.Profile{ID: "u-pedro", FullName: "Pedro Diaz", OperationalLevel: 2}
	store := newMemStore(mario, sofia, other)
	up := newFakeUpstream()
	svc, _ := newTestService(store, up)
	ctx := context.Background()

	mirrored, err := svc.MirrorTicket(ctx, openTicket("801", "Mario Vasquez"), &mario)
	require.NoError(t, err)

	res, err := svc.EscalateWorkItem(ctx, EscalationRequest{WorkItemID: mirrored.WorkItem.ID, Reason: "cliente empresarial", ActorID: mario.ID})
	require.NoError(t, err)
	assert.Len(t, res.WorkItems, 2)
	assert.False(t, res.Pushed)
	assert.Empty(t, up.updates, "no single owner, nothing to push")

	old, err := store.GetWorkItem(ctx, mirrored.WorkItem.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemReassigned, old.Status)
}

func TestManualEscalationToTarget(t *testing.T) {
	store := newMemStore(mario, sofia)
	up := newFakeUpstream()
	up.staff = directory
	up.raw["802"] = rawTicket("802")
	svc, _ := newTestService(store, up)
	ctx := context.Background()

	mirrored, err := svc.MirrorTicket(ctx, openTicket("802", "Mario Vasquez"), &mario)
	require.NoError(t, err)

	res, err := svc.EscalateWorkItem(ctx, EscalationRequest{
		WorkItemID:      mirrored.WorkItem.ID,
		Reason:          "equipo danado",
		TargetProfileID: sofia.ID,
		Priority:        intPtr(5),
		Attachment:      "foto-onu.jpg",
		ActorID:         mario.ID,
	})
	require.NoError(t, err)
	assert.True(t, res.Pushed)
	assert.Equal(t, 1, res.PreviousLevel)
	assert.Equal(t, 2, res.Level)

	payload := up.updates["802"]
	require.NotNil(t, payload)
	assert.Equal(t, 5, payload["prioridad"])
	desc, _ := payload["descripcion"].(string)
	assert.Contains(t, desc, "Cliente sin internet\n\n--- ESCALATION (LEVEL 2) ---")
	assert.Contains(t, desc, "By: Mario Vasquez")
	assert.Contains(t, desc, "Reason: equipo danado")
	assert.Contains(t, desc, "Attachment: foto-onu.jpg")

	// A later sync that resolves the new owner must not hand them a second item.
	again, err := svc.MirrorTicket(ctx, openTicket("802", "Sofia Mendez"), &sofia)
	require.NoError(t, err)
	assert.Nil(t, again.WorkItem)
	assert.Len(t, store.itemsFor(sofia.ID), 1)
}

func TestEscalationFromLevelZeroJumpsToSupervisor(t *testing.T) {
	store := newMemStore(mario, sofia)
	svc, _ := newTestService(store, newFakeUpstream())
	ctx := context.Background()

	p, err := svc.CreateProcess(ctx, ProcessInput{Title: "Revisar nodo norte"}, mario.ID)
	require.NoError(t, err)
	require.Zero(t, p.Metadata.CurrentLevel)
	_, wi, err := svc.CreateStep(ctx, StepInput{ProcessID: p.ID, Name: "Diagnostico", ParticipantID: mario.ID})
	require.NoError(t, err)

	res, err := svc.EscalateWorkItem(ctx, EscalationRequest{WorkItemID: wi.ID, Reason: "sin acceso al nodo", ActorID: mario.ID})
	require.NoError(t, err)
	assert.Equal(t, 0, res.PreviousLevel)
	assert.Equal(t, 2, res.Level)
}

func TestEscalationDivergesWhenTargetHasNoStaffID(t *testing.T) {
	unmapped := models.Profile{ID: "u-nuevo", FullName: "Tecnico Nuevo", OperationalLevel: 2}
	store := newMemStore(mario, unmapped)
	up := newFakeUpstream()
	up.staff = directory
	up.raw["803"] = rawTicket("803")
	svc, _ := newTestService(store, up)
	ctx := context.Background()

	mirrored, err := svc.MirrorTicket(ctx, openTicket("803", "Mario Vasquez"), &mario)
	require.NoError(t, err)

	res, err := svc.EscalateWorkItem(ctx, EscalationRequest{WorkItemID: mirrored.WorkItem.ID, Reason: "sin avance", TargetProfileID: unmapped.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Level)
	assert.False(t, res.Pushed)
	assert.NotEmpty(t, res.Divergence)
	assert.Empty(t, up.updates)
	assert.Len(t, store.logsOfType(models.EventUpstreamFailure), 1)
}

func TestEscalationCeilingRejects(t *testing.T) {
	store := newMemStore(mario)
	svc, clock := newTestService(store, newFakeUpstream())
	ctx := context.Background()

	mirrored, err := svc.MirrorTicket(ctx, openTicket("804", "Mario Vasquez"), &mario)
	require.NoError(t, err)
	proc := mirrored.Process
	proc.Metadata.CurrentLevel = MaxEscalationLevel
	require.NoError(t, store.UpdateProcess(ctx, proc))

	_, err = svc.EscalateWorkItem(ctx, EscalationRequest{WorkItemID: mirrored.WorkItem.ID, Reason: "otra vez"})
	assert.True(t, errors.Is(err, ErrEscalationCeiling))

	got, err := store.GetProcess(ctx, proc.ID)
	require.NoError(t, err)
	assert.Equal(t, MaxEscalationLevel, got.Metadata.CurrentLevel)
	wi, err := store.GetWorkItem(ctx, mirrored.WorkItem.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemPending, wi.Status)
	assert.Len(t, store.logsOfType(models.EventEscalationLimit), 1)

	// The sweep expires the item so the ceiling is reported once.
	clock.advance(25 * time.Hour)
	report, err := svc.CheckTimeouts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Ceiling)
	report, err = svc.CheckTimeouts(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Ceiling)
}

func TestFailedEscalationLeavesProcessUntouched(t *testing.T) {
	store := newMemStore(mario, sofia)
	svc, clock := newTestService(store, newFakeUpstream())
	ctx := context.Background()

	mirrored, err := svc.MirrorTicket(ctx, openTicket("806", "Mario Vasquez"), &mario)
	require.NoError(t, err)

	store.failWorkItemInsert = errors.New("connection reset")
	clock.advance(25 * time.Hour)
	report, err := svc.CheckTimeouts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	proc, err := store.GetProcess(ctx, mirrored.Process.ID)
	require.NoError(t, err)
	assert.Equal(t, FrontLineLevel, proc.Metadata.CurrentLevel)
	assert.Equal(t, models.ProcessPending, proc.Status)
	wi, err := store.GetWorkItem(ctx, mirrored.WorkItem.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemPending, wi.Status)
	_, err = store.ActiveActivity(ctx, proc.ID, models.ActivityTypeEscalate)
	assert.ErrorIs(t, err, ErrNotFound)

	// The next sweep retries from the same state.
	store.failWorkItemInsert = nil
	report, err = svc.CheckTimeouts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Escalated)
	assert.Len(t, store.itemsFor(sofia.ID), 1)
}

func TestEscalateRejectsNonPendingItem(t *testing.T) {
	store := newMemStore(mario)
	svc, _ := newTestService(store, newFakeUpstream())
	ctx := context.Background()

	mirrored, err := svc.MirrorTicket(ctx, openTicket("805", "Mario Vasquez"), &mario)
	require.NoError(t, err)
	require.NoError(t, store.SetWorkItemStatus(ctx, mirrored.WorkItem.ID, models.WorkItemCompleted, time.Now()))

	_, err = svc.EscalateWorkItem(ctx, EscalationRequest{WorkItemID: mirrored.WorkItem.ID, Reason: "x"})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestAutoCloseAfterIdleResolvedWindow(t *testing.T) {
	store := newMemStore()
	svc, clock := newTestService(store, newFakeUpstream())
	ctx := context.Background()

	stale, err := store.InsertProcess(ctx, models.Process{ID: "p-stale", ReferenceID: "900", Status: models.ProcessResolved, UpdatedAt: clock.t.Add(-25 * time.Hour)})
	require.NoError(t, err)
	fresh, err := store.InsertProcess(ctx, models.Process{ID: "p-fresh", ReferenceID: "901", Status: models.ProcessResolved, UpdatedAt: clock.t.Add(-23 * time.Hour)})
	require.NoError(t, err)

	report, err := svc.CheckTimeouts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.AutoClosed)

	got, err := store.GetProcess(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessClosed, got.Status)
	got, err = store.GetProcess(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessResolved, got.Status)
	assert.Len(t, store.logsOfType(models.EventAutoClose), 1)
}

func TestCheckTimeoutsIsIdempotent(t *testing.T) {
	store := newMemStore(mario, sofia)
	up := newFakeUpstream()
	up.staff = directory
	up.raw["902"] = rawTicket("902")
	svc, clock := newTestService(store, up)
	ctx := context.Background()

	_, err := svc.MirrorTicket(ctx, openTicket("902", "Mario Vasquez"), &mario)
	require.NoError(t, err)
	_, err = store.InsertProcess(ctx, models.Process{ID: "p-old", ReferenceID: "903", Status: models.ProcessResolved, UpdatedAt: clock.t.Add(-48 * time.Hour)})
	require.NoError(t, err)

	clock.advance(25 * time.Hour)
	first, err := svc.CheckTimeouts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Escalated)
	assert.Equal(t, 1, first.AutoClosed)

	writes := store.writes
	second, err := svc.CheckTimeouts(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{}, second)
	assert.Equal(t, writes, store.writes)
}
