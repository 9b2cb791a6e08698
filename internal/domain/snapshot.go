package domain

import "time"

// Snapshot is the reconciled view of the inventory. A snapshot is never
// modified once published; every sync or mutation produces a new one.
type Snapshot struct {
	Version     int64        `json:"version"`
	SyncedAt    time.Time    `json:"synced_at"`
	Equipment   []Equipment  `json:"equipment"`
	Users       []User       `json:"users"`
	Sessions    []Session    `json:"sessions"`
	History     []Session    `json:"history"`
	Assignments []Assignment `json:"assignments"`
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		Equipment:   []Equipment{},
		Users:       []User{},
		Sessions:    []Session{},
		History:     []Session{},
		Assignments: []Assignment{},
	}
}

// Clone returns a deep copy that can be modified freely.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return NewSnapshot()
	}
	out := &Snapshot{
		Version:     s.Version,
		SyncedAt:    s.SyncedAt,
		Equipment:   append([]Equipment{}, s.Equipment...),
		Users:       append([]User{}, s.Users...),
		Sessions:    cloneSessions(s.Sessions),
		History:     cloneSessions(s.History),
		Assignments: append([]Assignment{}, s.Assignments...),
	}
	return out
}

func cloneSessions(in []Session) []Session {
	out := make([]Session, len(in))
	for i, s := range in {
		s.Items = append([]string{}, s.Items...)
		out[i] = s
	}
	return out
}

func (s *Snapshot) EquipmentIndex(id string) int {
	for i := range s.Equipment {
		if s.Equipment[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Snapshot) SessionIndex(id string) int {
	for i := range s.Sessions {
		if s.Sessions[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Snapshot) AssignmentIndex(id string) int {
	for i := range s.Assignments {
		if s.Assignments[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Snapshot) FindUser(id string) (*User, bool) {
	for i := range s.Users {
		if s.Users[i].ID == id {
			return &s.Users[i], true
		}
	}
	return nil, false
}

// RoleOf returns the role of a user, treating unknown users as external.
func (s *Snapshot) RoleOf(userID string) Role {
	if u, ok := s.FindUser(userID); ok {
		return u.Role
	}
	return RoleExternal
}

func (s *Snapshot) ActiveAssignments() []Assignment {
	var out []Assignment
	for _, a := range s.Assignments {
		if a.Status == AssignmentActive {
			out = append(out, a)
		}
	}
	return out
}

func (s *Snapshot) OverdueSessions(now time.Time) []Session {
	var out []Session
	for i := range s.Sessions {
		if s.Sessions[i].IsOverdue(now) {
			out = append(out, s.Sessions[i])
		}
	}
	return out
}
