package models

import "time"

// Process statuses use the short codes the operations team already reads in reports.
const (
	ProcessPending   = "PE"
	ProcessResolved  = "SS"
	ProcessEscalated = "ES"
	ProcessClosed    = "CL"
)

const (
	ActivityActive    = "ACTIVE"
	ActivityCompleted = "COMPLETED"
)

const (
	WorkItemPending    = "PENDING"
	WorkItemCompleted  = "COMPLETED"
	WorkItemCancelled  = "CANCELLED"
	WorkItemReassigned = "REASSIGNED"
	WorkItemExpired    = "EXPIRED"
)

const (
	ParticipantUser        = "USER"
	ParticipantSupervisor  = "SUPERVISOR"
	ParticipantManager     = "MANAGER"
	ParticipantDirector    = "DIRECTOR"
	ParticipantPlaceholder = "PLACEHOLDER"
)

const (
	EventCreation        = "CREATION"
	EventReassignment    = "REASSIGNMENT"
	EventEscalation      = "ESCALATION"
	EventEscalationLimit = "ESCALATION_CEILING"
	EventApproval        = "APPROVAL"
	EventAutoClose       = "AUTO_CLOSE"
	EventUpstreamFailure = "UPSTREAM_DIVERGENCE"
)

const (
	ProcessTypeTicket    = "WISPHUB_TICKET"
	ProcessTypeInternal  = "INTERNAL"
	ActivityTypeSync     = "TICKET_SYNC"
	ActivityTypeEscalate = "ESCALATION"
	ActivityTypeManual   = "MANUAL"
)

// Profile is a local platform user. ID is the identity work items join against.
type Profile struct {
	ID               string    `json:"id"`
	FullName         string    `json:"full_name"`
	Email            string    `json:"email"`
	WisphubID        string    `json:"wisphub_id"`
	WisphubManualID  string    `json:"wisphub_manual_id"`
	WisphubStaffID   *int      `json:"wisphub_staff_id"`
	OperationalLevel int       `json:"operational_level"`
	IsFieldTech      bool      `json:"is_field_tech"`
	CreatedAt        time.Time `json:"created_at"`
}

// UpstreamIdentity prefers the manual mapping over the automatic one.
func (p Profile) UpstreamIdentity() string {
	if p.WisphubManualID != "" {
		return p.WisphubManualID
	}
	return p.WisphubID
}

// ParticipantType maps an operational level to the participant tag stored on work items.
func ParticipantType(level int) string {
	switch {
	case level >= 4:
		return ParticipantDirector
	case level == 3:
		return ParticipantManager
	case level == 2:
		return ParticipantSupervisor
	default:
		return ParticipantUser
	}
}

type OwnerReview struct {
	CandidateID string `json:"candidate_id"`
	Rule        string `json:"rule"`
	Technician  string `json:"technician"`
}

// ProcessMetadata keeps the fields the workflow engine depends on apart from the raw
// upstream snapshot so a sparse upstream payload cannot clobber them.
type ProcessMetadata struct {
	CurrentLevel     int            `json:"current_level"`
	LastEscalationAt *time.Time     `json:"last_escalation_at,omitempty"`
	ClientID         string         `json:"client_id,omitempty"`
	ClientName       string         `json:"nombre_cliente,omitempty"`
	CreatedBy        string         `json:"creado_por,omitempty"`
	Subject          string         `json:"asunto,omitempty"`
	Priority         string         `json:"prioridad,omitempty"`
	OpenedAt         *time.Time     `json:"opened_at,omitempty"`
	OwnerReview      *OwnerReview   `json:"owner_review,omitempty"`
	Snapshot         map[string]any `json:"snapshot,omitempty"`
}

type Process struct {
	ID          string          `json:"id"`
	ReferenceID string          `json:"reference_id"`
	Title       string          `json:"title"`
	Status      string          `json:"status"`
	ProcessType string          `json:"process_type"`
	Metadata    ProcessMetadata `json:"metadata"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (p Process) IsTerminal() bool {
	return p.Status == ProcessResolved || p.Status == ProcessClosed
}

type Activity struct {
	ID           string     `json:"id"`
	ProcessID    string     `json:"process_id"`
	Name         string     `json:"name"`
	Status       string     `json:"status"`
	ActivityType string     `json:"activity_type"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at"`
}

type WorkItem struct {
	ID              string    `json:"id"`
	ActivityID      string    `json:"activity_id"`
	ParticipantID   string    `json:"participant_id"`
	ParticipantType string    `json:"participant_type"`
	Status          string    `json:"status"`
	Deadline        time.Time `json:"deadline"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// OwnedWorkItem is a work item joined with the activity and process that own it.
type OwnedWorkItem struct {
	WorkItem WorkItem `json:"work_item"`
	Activity Activity `json:"activity"`
	Process  Process  `json:"process"`
}

type LogEntry struct {
	ID          string    `json:"id"`
	ProcessID   string    `json:"process_id"`
	EventType   string    `json:"event_type"`
	Description string    `json:"description"`
	ActorID     *string   `json:"actor_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type Neighborhood struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	City      string    `json:"city"`
	Lat       *float64  `json:"lat"`
	Lon       *float64  `json:"lon"`
	Source    string    `json:"source"`
	UpdatedAt time.Time `json:"updated_at"`
}
