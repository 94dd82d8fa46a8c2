package activity

import (
	"time"

	"github.com/google/uuid"
)

// Entry is one row of the append-only activity log.
type Entry struct {
	ID              uuid.UUID  `json:"id"`
	ActionType      string     `json:"action_type"`
	Description     string     `json:"action_description"`
	TargetType      string     `json:"target_type,omitempty"`
	TargetID        *uuid.UUID `json:"target_id,omitempty"`
	TargetName      string     `json:"target_name,omitempty"`
	PerformedBy     *uuid.UUID `json:"performed_by,omitempty"`
	PerformedByName string     `json:"performed_by_name,omitempty"`
	IPAddress       string     `json:"ip_address,omitempty"`
	UserAgent       string     `json:"user_agent,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Filter narrows List and Export. Dates are YYYY-MM-DD.
type Filter struct {
	ActionType  string `schema:"action_type"`
	TargetType  string `schema:"target_type"`
	PerformedBy string `schema:"performed_by"`
	Search      string `schema:"search"`
	DateFrom    string `schema:"date_from"`
	DateTo      string `schema:"date_to"`
}

// Target names what an action was performed on.
type Target struct {
	Type string
	ID   uuid.UUID
	Name string
}

var csvHeader = []string{
	"Log ID", "Action Type", "Description", "Target Type", "Target ID", "Target Name",
	"Performed By", "Performed By Name", "IP Address", "Date",
}

func csvRow(e *Entry) []string {
	targetID, performedBy := "", ""
	if e.TargetID != nil {
		targetID = e.TargetID.String()
	}
	if e.PerformedBy != nil {
		performedBy = e.PerformedBy.String()
	}
	return []string{
		e.ID.String(), e.ActionType, e.Description, e.TargetType, targetID, e.TargetName,
		performedBy, e.PerformedByName, e.IPAddress, e.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}
