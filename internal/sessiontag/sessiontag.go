// Package sessiontag encodes the link between an item and the session that
// holds it. The backend has no session records, so the link travels inside
// the item's condition column as
//
//	SESION|{sessionId}|{project}|{start}|{end}|{userId}|{type}
package sessiontag

import (
	"errors"
	"fmt"
	"strings"

	"github.com/DGApex/CRT-INV/internal/domain"
)

const (
	Discriminator = "SESION"
	separator     = "|"
	fieldCount    = 7
)

var (
	// ErrNotTag means the text is ordinary free text, not a session tag.
	ErrNotTag = errors.New("not a session tag")
	// ErrMalformed means the text claims to be a tag but cannot be decoded.
	ErrMalformed = errors.New("malformed session tag")
)

type SessionRef struct {
	SessionID   string
	ProjectName string
	StartDate   string
	EndDate     string
	UserID      string
	Type        domain.SessionType
}

func FromSession(s *domain.Session) SessionRef {
	return SessionRef{
		SessionID:   s.ID,
		ProjectName: s.ProjectName,
		StartDate:   s.StartDate,
		EndDate:     s.EndDate,
		UserID:      s.UserID,
		Type:        s.Type,
	}
}

// Session builds the active session the tag describes, without items.
func (r SessionRef) Session() domain.Session {
	project := r.ProjectName
	if project == "" {
		project = domain.DefaultProjectName
	}
	sessionType := r.Type
	if sessionType == "" {
		sessionType = domain.SessionTypeResidency
	}
	return domain.Session{
		ID:          r.SessionID,
		UserID:      r.UserID,
		ProjectName: project,
		Type:        sessionType,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		Status:      domain.SessionActive,
		Items:       []string{},
	}
}

// Encode renders the tag. Separators inside fields are removed so the
// result always has exactly seven fields.
func Encode(r SessionRef) string {
	fields := []string{
		Discriminator,
		clean(r.SessionID),
		clean(r.ProjectName),
		clean(r.StartDate),
		clean(r.EndDate),
		clean(r.UserID),
		clean(string(r.Type)),
	}
	return strings.Join(fields, separator)
}

func Decode(text string) (SessionRef, error) {
	if !IsTag(text) {
		return SessionRef{}, ErrNotTag
	}
	parts := strings.Split(text, separator)
	if len(parts) != fieldCount {
		return SessionRef{}, fmt.Errorf("%w: %d fields, want %d", ErrMalformed, len(parts), fieldCount)
	}
	if strings.TrimSpace(parts[1]) == "" {
		return SessionRef{}, fmt.Errorf("%w: missing session id", ErrMalformed)
	}
	return SessionRef{
		SessionID:   parts[1],
		ProjectName: parts[2],
		StartDate:   parts[3],
		EndDate:     parts[4],
		UserID:      parts[5],
		Type:        domain.SessionType(parts[6]),
	}, nil
}

// IsTag reports whether text carries the tag discriminator.
func IsTag(text string) bool {
	return strings.HasPrefix(text, Discriminator+separator)
}

// Refers reports whether text is a well-formed tag for sessionID.
func Refers(text, sessionID string) bool {
	ref, err := Decode(text)
	return err == nil && ref.SessionID == sessionID
}

func clean(field string) string {
	return strings.ReplaceAll(field, separator, "")
}
