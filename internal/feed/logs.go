package feed

import (
	"strings"

	"github.com/DGApex/CRT-INV/internal/domain"
	"github.com/google/uuid"
)

// ParseHistory converts rows of the session log sheet into closed sessions.
func ParseHistory(rows []domain.Row) []domain.Session {
	history := make([]domain.Session, 0, len(rows))
	for _, row := range rows {
		id := LookupString(row, "ID", "SessionID")
		if id == "" {
			id = uuid.New().String()
		}
		project := LookupString(row, "Proyecto", "Project")
		if project == "" {
			project = "Archivado"
		}
		sessionType := domain.SessionType(LookupString(row, "Tipo", "Type"))
		if sessionType == "" {
			sessionType = domain.SessionTypeResidency
		}

		history = append(history, domain.Session{
			ID:           id,
			UserID:       LookupString(row, "UsuarioID", "UserID"),
			ProjectName:  project,
			Type:         sessionType,
			StartDate:    LookupString(row, "Inicio", "Start"),
			EndDate:      LookupString(row, "Fin", "End"),
			Status:       domain.SessionClosed,
			Items:        splitItems(LookupString(row, "Equipos", "Items")),
			Observations: LookupString(row, "Observaciones", "Observations"),
		})
	}
	return history
}

func splitItems(raw string) []string {
	items := []string{}
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			items = append(items, p)
		}
	}
	return items
}
