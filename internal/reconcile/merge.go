package reconcile

import (
	"fmt"
	"sort"
	"time"

	"github.com/DGApex/CRT-INV/internal/domain"
	"github.com/DGApex/CRT-INV/internal/sessiontag"
)

type MergeInput struct {
	RemoteSessions []domain.Session
	RemoteItems    []domain.Equipment
	// RemoteHistory is empty when the log feed returned nothing this cycle.
	RemoteHistory []domain.Session
	Users         []domain.User
	Previous      *domain.Snapshot
	Now           time.Time
}

type MergeResult struct {
	Sessions    []domain.Session
	Equipment   []domain.Equipment
	History     []domain.Session
	Assignments []domain.Assignment
	// Pending lists local sessions the remote has not shown yet.
	Pending []string
	// Dropped lists confirmed sessions the remote no longer shows.
	Dropped []string
	// Superseded lists local assignments whose item a session now holds.
	Superseded []string
}

// Merge reconciles a fresh remote read with the previous local snapshot.
// The remote wins for everything it shows. Sessions created locally that it
// does not show yet are kept, and their items keep the claimed status the
// local write gave them until the remote catches up. A session the remote
// showed before and no longer shows was closed remotely and is dropped.
func Merge(in MergeInput) MergeResult {
	prev := in.Previous
	if prev == nil {
		prev = domain.NewSnapshot()
	}

	equipment := append([]domain.Equipment{}, in.RemoteItems...)
	itemIndex := make(map[string]int, len(equipment))
	for i := range equipment {
		itemIndex[equipment[i].ID] = i
	}

	remoteIDs := make(map[string]bool, len(in.RemoteSessions))
	claimedBy := make(map[string]string)
	sessions := make([]domain.Session, 0, len(in.RemoteSessions)+len(prev.Sessions))
	for _, s := range in.RemoteSessions {
		remoteIDs[s.ID] = true
		s.Items = append([]string{}, s.Items...)
		for _, id := range s.Items {
			claimedBy[id] = s.ID
		}
		sessions = append(sessions, s)
	}

	var pending, dropped []string
	for _, local := range prev.Sessions {
		if remoteIDs[local.ID] {
			continue
		}
		if !local.Local {
			dropped = append(dropped, local.ID)
			continue
		}
		pending = append(pending, local.ID)

		status := roleOf(in.Users, local.UserID).ClaimStatus()
		tag := sessiontag.Encode(sessiontag.FromSession(&local))

		kept := make([]string, 0, len(local.Items))
		for _, itemID := range local.Items {
			if _, taken := claimedBy[itemID]; taken {
				continue
			}
			claimedBy[itemID] = local.ID
			kept = append(kept, itemID)
			if i, ok := itemIndex[itemID]; ok {
				equipment[i].Status = status
				equipment[i].Condition = tag
			}
		}
		local.Items = kept
		sessions = append(sessions, local)
	}

	assignments := make([]domain.Assignment, 0, len(prev.Assignments))
	var superseded []string
	for _, a := range prev.Assignments {
		if a.Status == domain.AssignmentActive {
			if holder, taken := claimedBy[a.EquipmentID]; taken {
				a.Status = domain.AssignmentReturned
				a.ReturnDate = in.Now.UTC().Format(time.RFC3339)
				a.ReturnCondition = fmt.Sprintf("Reclamado por sesión %s", holder)
				superseded = append(superseded, a.ID)
			} else {
				claimedBy[a.EquipmentID] = a.ID
				if i, ok := itemIndex[a.EquipmentID]; ok {
					equipment[i].Status = domain.StatusAssignedInternal
				}
			}
		}
		assignments = append(assignments, a)
	}

	var history []domain.Session
	if len(in.RemoteHistory) > 0 {
		history = append([]domain.Session{}, in.RemoteHistory...)
	} else {
		history = append([]domain.Session{}, prev.History...)
	}
	SortHistory(history)

	return MergeResult{
		Sessions:    sessions,
		Equipment:   equipment,
		History:     history,
		Assignments: assignments,
		Pending:     pending,
		Dropped:     dropped,
		Superseded:  superseded,
	}
}

// SortHistory orders sessions by end date, newest first. Sessions without a
// usable end date go last, in their original order.
func SortHistory(history []domain.Session) {
	sort.SliceStable(history, func(i, j int) bool {
		ei, okI := domain.ParseDate(history[i].EndDate)
		ej, okJ := domain.ParseDate(history[j].EndDate)
		switch {
		case okI && okJ:
			return ei.After(ej)
		case okI:
			return true
		default:
			return false
		}
	})
}

func roleOf(users []domain.User, userID string) domain.Role {
	for i := range users {
		if users[i].ID == userID {
			return users[i].Role
		}
	}
	return domain.RoleExternal
}
