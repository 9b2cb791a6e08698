package domain

import (
	"strings"
	"time"
)

type SessionType string

const (
	SessionTypeEvent              SessionType = "Evento"
	SessionTypeInternalProduction SessionType = "Producción interna"
	SessionTypeWorkshop           SessionType = "Workshops/Clases"
	SessionTypeResidency          SessionType = "Residencia"
)

type SessionStatus string

const (
	SessionActive SessionStatus = "Activa"
	SessionClosed SessionStatus = "Cerrada"
)

// DefaultProjectName is used when a tag or log row carries no project.
const DefaultProjectName = "Sin Nombre"

type Session struct {
	ID           string        `json:"id"`
	UserID       string        `json:"user_id"`
	ProjectName  string        `json:"project_name"`
	Type         SessionType   `json:"type"`
	StartDate    string        `json:"start_date"`
	EndDate      string        `json:"end_date,omitempty"`
	Status       SessionStatus `json:"status"`
	Items        []string      `json:"items"`
	Observations string        `json:"observations,omitempty"`
	ScheduledEnd string        `json:"scheduled_end,omitempty"`
	TotalHours   int           `json:"total_hours,omitempty"`
	// Local marks a session created here that no remote read has shown
	// yet. It is cleared once the remote reports the session.
	Local bool `json:"local,omitempty"`
}

func (s *Session) HasItem(itemID string) bool {
	for _, id := range s.Items {
		if id == itemID {
			return true
		}
	}
	return false
}

// IsOverdue reports whether an active session is past the end of its end
// date. Sessions without a parseable end date are never overdue.
func (s *Session) IsOverdue(now time.Time) bool {
	if s.Status != SessionActive {
		return false
	}
	end, ok := ParseDate(s.EndDate)
	if !ok {
		return false
	}
	endOfDay := time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 999999999, now.Location())
	return now.After(endOfDay)
}

// SessionHours counts every calendar day touched by the session as a full
// 24 hours. An end before the start yields 0.
func SessionHours(start, end string) int {
	s, ok := ParseDate(start)
	if !ok {
		return 0
	}
	e, ok := ParseDate(end)
	if !ok {
		return 0
	}
	s = time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, time.UTC)
	e = time.Date(e.Year(), e.Month(), e.Day(), 0, 0, 0, 0, time.UTC)
	if e.Before(s) {
		return 0
	}
	days := int(e.Sub(s).Hours() / 24)
	return (days + 1) * 24
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
}

// ParseDate accepts the handful of date formats the sheet and the clients
// produce.
func ParseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ShortDate renders a date as YYYY-MM-DD, or "N/A" when it cannot be parsed.
func ShortDate(value string) string {
	t, ok := ParseDate(value)
	if !ok {
		return "N/A"
	}
	return t.Format("2006-01-02")
}

type CreateSessionRequest struct {
	ID          string      `json:"id,omitempty"`
	UserID      string      `json:"user_id" validate:"required"`
	ProjectName string      `json:"project_name" validate:"required"`
	Type        SessionType `json:"type" validate:"required,oneof=Evento 'Producción interna' Workshops/Clases Residencia"`
	StartDate   string      `json:"start_date" validate:"required"`
	EndDate     string      `json:"end_date"`
	Items       []string    `json:"items" validate:"required,min=1,dive,required"`
}

type SessionItemRequest struct {
	EquipmentID string `json:"equipment_id" validate:"required"`
}

type CloseSessionRequest struct {
	Comment string `json:"comment"`
}
