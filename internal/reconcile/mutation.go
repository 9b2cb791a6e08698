package reconcile

import (
	"fmt"
	"strings"
	"time"

	"github.com/DGApex/CRT-INV/internal/domain"
	"github.com/DGApex/CRT-INV/internal/sessiontag"
)

// Mutation is a local lifecycle transition for sessions or assignments.
type Mutation interface {
	Kind() string
	apply(mu *mutator) error
}

type (
	CreateSession domain.CreateSessionRequest

	AddItem struct {
		SessionID   string
		EquipmentID string
	}

	RemoveItem struct {
		SessionID   string
		EquipmentID string
	}

	CloseSession struct {
		SessionID string
		Comment   string
	}

	AddAssignment domain.CreateAssignmentRequest

	ReturnAssignment struct {
		AssignmentID    string
		ReturnCondition string
	}
)

func (CreateSession) Kind() string    { return "create_session" }
func (AddItem) Kind() string          { return "add_item" }
func (RemoveItem) Kind() string       { return "remove_item" }
func (CloseSession) Kind() string     { return "close_session" }
func (AddAssignment) Kind() string    { return "add_assignment" }
func (ReturnAssignment) Kind() string { return "return_assignment" }

type mutator struct {
	r        *Reconciler
	snap     *domain.Snapshot
	now      time.Time
	commands []domain.Command
}

func (mu *mutator) emit(cmd domain.Command) {
	cmd.ID = mu.r.newID()
	cmd.CreatedAt = mu.now
	mu.commands = append(mu.commands, cmd)
}

func (mu *mutator) emitUpdates(updates ...domain.StatusUpdate) {
	if len(updates) == 0 {
		return
	}
	mu.emit(domain.Command{Action: domain.ActionUpdateStatus, Updates: updates})
}

func (mu *mutator) timestamp() string {
	return mu.now.UTC().Format(time.RFC3339)
}

// unavailable returns the requested ids that are unknown or not available.
func (mu *mutator) unavailable(ids []string) []string {
	var bad []string
	for _, id := range ids {
		i := mu.snap.EquipmentIndex(id)
		if i < 0 || !mu.snap.Equipment[i].IsAvailable() {
			bad = append(bad, id)
		}
	}
	return bad
}

func (mu *mutator) claim(itemID string, status domain.EquipmentStatus, condition string) domain.StatusUpdate {
	i := mu.snap.EquipmentIndex(itemID)
	mu.snap.Equipment[i].Status = status
	mu.snap.Equipment[i].Condition = condition
	return domain.StatusUpdate{EquipmentID: itemID, Status: status, Condition: condition}
}

func (mu *mutator) release(itemID, condition string) (domain.StatusUpdate, bool) {
	i := mu.snap.EquipmentIndex(itemID)
	if i < 0 {
		return domain.StatusUpdate{}, false
	}
	mu.snap.Equipment[i].Status = domain.StatusAvailable
	mu.snap.Equipment[i].Condition = condition
	return domain.StatusUpdate{EquipmentID: itemID, Status: domain.StatusAvailable, Condition: condition}, true
}

func (m CreateSession) apply(mu *mutator) error {
	items := uniqueItems(m.Items)
	if bad := mu.unavailable(items); len(bad) > 0 {
		return fmt.Errorf("%w: %s", ErrUnavailable, strings.Join(bad, ", "))
	}

	id := m.ID
	if id == "" {
		id = mu.r.newID()
	}
	if mu.snap.SessionIndex(id) >= 0 {
		return fmt.Errorf("%w: %s", ErrSessionExists, id)
	}

	session := domain.Session{
		ID:          id,
		UserID:      m.UserID,
		ProjectName: strings.ReplaceAll(m.ProjectName, "|", ""),
		Type:        m.Type,
		StartDate:   m.StartDate,
		EndDate:     m.EndDate,
		Status:      domain.SessionActive,
		Items:       items,
		Local:       true,
	}

	tag := sessiontag.Encode(sessiontag.FromSession(&session))
	status := mu.snap.RoleOf(session.UserID).ClaimStatus()

	updates := make([]domain.StatusUpdate, 0, len(items))
	for _, itemID := range items {
		updates = append(updates, mu.claim(itemID, status, tag))
	}

	mu.snap.Sessions = append([]domain.Session{session}, mu.snap.Sessions...)
	mu.emitUpdates(updates...)
	return nil
}

func (m AddItem) apply(mu *mutator) error {
	si := mu.snap.SessionIndex(m.SessionID)
	if si < 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, m.SessionID)
	}
	session := &mu.snap.Sessions[si]
	if session.HasItem(m.EquipmentID) {
		return fmt.Errorf("%w: %s", ErrAlreadyMember, m.EquipmentID)
	}
	if bad := mu.unavailable([]string{m.EquipmentID}); len(bad) > 0 {
		return fmt.Errorf("%w: %s", ErrUnavailable, m.EquipmentID)
	}

	tag := sessiontag.Encode(sessiontag.FromSession(session))
	status := mu.snap.RoleOf(session.UserID).ClaimStatus()

	session.Items = append(session.Items, m.EquipmentID)
	mu.emitUpdates(mu.claim(m.EquipmentID, status, tag))
	return nil
}

func (m RemoveItem) apply(mu *mutator) error {
	si := mu.snap.SessionIndex(m.SessionID)
	if si < 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, m.SessionID)
	}
	session := &mu.snap.Sessions[si]
	if !session.HasItem(m.EquipmentID) {
		return fmt.Errorf("%w: %s", ErrNotMember, m.EquipmentID)
	}

	kept := session.Items[:0]
	for _, id := range session.Items {
		if id != m.EquipmentID {
			kept = append(kept, id)
		}
	}
	session.Items = kept

	if update, ok := mu.release(m.EquipmentID, domain.ConditionReturned); ok {
		mu.emitUpdates(update)
	}
	return nil
}

func (m CloseSession) apply(mu *mutator) error {
	si := mu.snap.SessionIndex(m.SessionID)
	if si < 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, m.SessionID)
	}
	session := mu.snap.Sessions[si]

	comment := strings.TrimSpace(m.Comment)
	if comment == "" {
		comment = domain.ConditionReturnedOK
	}

	names := make([]string, 0, len(session.Items))
	updates := make([]domain.StatusUpdate, 0, len(session.Items))
	for _, itemID := range session.Items {
		name := itemID
		if i := mu.snap.EquipmentIndex(itemID); i >= 0 {
			name = mu.snap.Equipment[i].Name
		}
		names = append(names, name)
		if update, ok := mu.release(itemID, comment); ok {
			updates = append(updates, update)
		}
	}

	closed := session
	closed.Status = domain.SessionClosed
	closed.ScheduledEnd = session.EndDate
	closed.EndDate = mu.timestamp()
	closed.Observations = comment
	closed.TotalHours = domain.SessionHours(closed.StartDate, closed.EndDate)

	mu.snap.Sessions = append(mu.snap.Sessions[:si], mu.snap.Sessions[si+1:]...)
	mu.snap.History = append([]domain.Session{closed}, mu.snap.History...)

	userName := closed.UserID
	if u, ok := mu.snap.FindUser(closed.UserID); ok {
		userName = u.Name
	}

	mu.emitUpdates(updates...)
	mu.emit(domain.Command{
		Action: domain.ActionLogSession,
		LogData: &domain.SessionLog{
			SessionID:    closed.ID,
			Project:      closed.ProjectName,
			UserID:       closed.UserID,
			UserName:     userName,
			Start:        domain.ShortDate(closed.StartDate),
			End:          domain.ShortDate(closed.EndDate),
			Items:        strings.Join(names, ", "),
			Type:         string(closed.Type),
			Observations: comment,
		},
	})
	return nil
}

func (m AddAssignment) apply(mu *mutator) error {
	if bad := mu.unavailable([]string{m.EquipmentID}); len(bad) > 0 {
		return fmt.Errorf("%w: %s", ErrUnavailable, m.EquipmentID)
	}

	i := mu.snap.EquipmentIndex(m.EquipmentID)
	item := &mu.snap.Equipment[i]

	assignedDate := m.AssignedDate
	if assignedDate == "" {
		assignedDate = mu.now.Format("2006-01-02")
	}
	initial := m.InitialCondition
	if initial == "" {
		initial = item.Condition
	}

	assignment := domain.Assignment{
		ID:               mu.r.newID(),
		UserID:           m.UserID,
		EquipmentID:      m.EquipmentID,
		Status:           domain.AssignmentActive,
		AssignedDate:     assignedDate,
		InitialCondition: initial,
		Observations:     m.Observations,
	}

	item.Status = domain.StatusAssignedInternal
	mu.snap.Assignments = append([]domain.Assignment{assignment}, mu.snap.Assignments...)
	mu.emitUpdates(domain.StatusUpdate{EquipmentID: m.EquipmentID, Status: domain.StatusAssignedInternal})
	return nil
}

func (m ReturnAssignment) apply(mu *mutator) error {
	ai := mu.snap.AssignmentIndex(m.AssignmentID)
	if ai < 0 {
		return fmt.Errorf("%w: %s", ErrAssignmentNotFound, m.AssignmentID)
	}
	assignment := &mu.snap.Assignments[ai]
	if assignment.Status == domain.AssignmentReturned {
		return fmt.Errorf("%w: %s", ErrAlreadyReturned, m.AssignmentID)
	}

	condition := strings.TrimSpace(m.ReturnCondition)
	if condition == "" {
		condition = domain.ConditionReturnedOK
	}

	assignment.Status = domain.AssignmentReturned
	assignment.ReturnDate = mu.timestamp()
	assignment.ReturnCondition = condition

	if update, ok := mu.release(assignment.EquipmentID, condition); ok {
		mu.emitUpdates(update)
	}
	return nil
}

func uniqueItems(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
