// Package wisphub is the client for the upstream ISP billing and ticketing platform.
package wisphub

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("wisphub: not found")

// Client is the contract the workflow engine consumes from the upstream platform.
type Client interface {
	Staff(ctx context.Context) ([]Staff, error)
	TicketsPage(ctx context.Context, page int, filter TicketFilter) (TicketPage, error)
	TicketRaw(ctx context.Context, ticketID string) (map[string]any, error)
	TicketDetail(ctx context.Context, ticketID string) (Ticket, error)
	UpdateTicket(ctx context.Context, ticketID string, payload map[string]any) error
	ClientNeighborhoods(ctx context.Context) ([]ClientNeighborhood, error)
}

type Staff struct {
	ID       int    `json:"id"`
	Name     string `json:"nombre"`
	Username string `json:"usuario"`
	Email    string `json:"email"`
	Level    string `json:"nivel"`
}

type TicketFilter struct {
	StartDate time.Time
	EndDate   time.Time
}

type TicketPage struct {
	Results []Ticket
	Count   int
}

type ClientNeighborhood struct {
	Name      string
	Latitude  float64
	Longitude float64
}

// Priority classes as the upstream numbers them.
type Priority int

const (
	PriorityUnknown Priority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityVeryHigh
	PriorityCritical
)

// Ticket is the projection of an upstream ticket the workflow depends on. Raw keeps the
// full record for snapshots.
type Ticket struct {
	ID                 string
	Subject            string
	Description        string
	Technician         string
	TechnicianUsername string
	TechnicianID       int
	Status             string
	StatusID           int
	Priority           Priority
	PriorityLabel      string
	ClientID           string
	ClientName         string
	CreatedBy          string
	Department         string
	CreatedAt          time.Time
	Raw                map[string]any
}

// Upstream status ids 3 and 4 are "Resuelto" and "Cerrado".
var terminalStatusIDs = map[int]bool{3: true, 4: true}

var terminalStatusNames = map[string]bool{
	"resuelto":    true,
	"cerrado":     true,
	"finalizado":  true,
	"solucionado": true,
	"resolved":    true,
	"closed":      true,
}

func (t Ticket) IsTerminal() bool {
	if terminalStatusIDs[t.StatusID] {
		return true
	}
	return terminalStatusNames[normalizeKey(t.Status)]
}
