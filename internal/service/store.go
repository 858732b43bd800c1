package service

import (
	"context"
	"errors"
	"time"

	"github.com/rapilink/backend/internal/db"
	"github.com/rapilink/backend/internal/models"
)

var (
	ErrNotFound            = db.ErrNotFound
	ErrConflict            = db.ErrConflict
	ErrEscalationCeiling   = errors.New("process already at the top escalation level")
	ErrUnresolvedIdentity  = errors.New("no upstream identity could be resolved")
	ErrUpstreamMapping     = errors.New("no upstream staff id for participant")
	ErrUpstreamUnavailable = errors.New("upstream ticket unavailable")
	ErrInvalidState        = errors.New("work item is not pending")
	ErrInvalidInput        = errors.New("invalid input")
	ErrGeocoderDisabled    = errors.New("geocoder not configured")
)

// Store is the relational store collaborator. *db.Store implements it.
type Store interface {
	WithReferenceLock(ctx context.Context, referenceID string, fn func(ctx context.Context) error) error

	ListProfiles(ctx context.Context) ([]models.Profile, error)
	GetProfile(ctx context.Context, id string) (models.Profile, error)
	ProfilesAtLevel(ctx context.Context, level int) ([]models.Profile, error)

	GetProcess(ctx context.Context, id string) (models.Process, error)
	GetProcessByReference(ctx context.Context, referenceID string) (models.Process, error)
	InsertProcess(ctx context.Context, p models.Process) (models.Process, error)
	UpsertProcess(ctx context.Context, p models.Process) (models.Process, error)
	UpdateProcess(ctx context.Context, p models.Process) error
	StaleResolvedProcesses(ctx context.Context, before time.Time) ([]models.Process, error)

	GetActivity(ctx context.Context, id string) (models.Activity, error)
	ActiveActivity(ctx context.Context, processID, activityType string) (models.Activity, error)
	InsertActivity(ctx context.Context, a models.Activity) (models.Activity, error)
	UpsertActivity(ctx context.Context, a models.Activity) (models.Activity, error)
	CompleteActivity(ctx context.Context, id string, at time.Time) error

	GetWorkItem(ctx context.Context, id string) (models.WorkItem, error)
	ActivityWorkItems(ctx context.Context, activityID string) ([]models.WorkItem, error)
	InsertWorkItem(ctx context.Context, w models.WorkItem) (models.WorkItem, error)
	UpsertWorkItem(ctx context.Context, w models.WorkItem) (models.WorkItem, error)
	SetWorkItemStatus(ctx context.Context, id, status string, at time.Time) error
	SetWorkItemParticipant(ctx context.Context, id, participantID, participantType string, at time.Time) error
	SupersedeWorkItems(ctx context.Context, activityID, keepParticipantID string, at time.Time) (int64, error)
	ClosePendingWorkItems(ctx context.Context, activityID, status string, at time.Time) (int64, error)
	PendingWorkItemsFor(ctx context.Context, participantID string) ([]models.OwnedWorkItem, error)
	OverdueWorkItems(ctx context.Context, now time.Time) ([]models.OwnedWorkItem, error)

	AppendLog(ctx context.Context, entry models.LogEntry) error
	ListLogs(ctx context.Context, processID string) ([]models.LogEntry, error)
	ClientVisitCount(ctx context.Context, clientID string, year int, month time.Month) (int, error)

	ListNeighborhoods(ctx context.Context) ([]models.Neighborhood, error)
	GetNeighborhood(ctx context.Context, id string) (models.Neighborhood, error)
	InsertNeighborhood(ctx context.Context, n models.Neighborhood) (models.Neighborhood, error)
	UpdateNeighborhood(ctx context.Context, n models.Neighborhood) error
	DeleteNeighborhood(ctx context.Context, id string) error
}

var _ Store = (*db.Store)(nil)
