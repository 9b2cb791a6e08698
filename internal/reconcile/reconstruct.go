package reconcile

import (
	"errors"
	"log/slog"

	"github.com/DGApex/CRT-INV/internal/domain"
	"github.com/DGApex/CRT-INV/internal/sessiontag"
)

// ReconstructSessions rebuilds the active sessions implied by the session
// tags of claimed items. Sessions come back in the order their first item
// appears. Items carrying a malformed tag are skipped and counted.
func ReconstructSessions(items []domain.Equipment, logger *slog.Logger) ([]domain.Session, int) {
	if logger == nil {
		logger = slog.Default()
	}

	byID := make(map[string]*domain.Session)
	var order []string
	skipped := 0

	for i := range items {
		item := &items[i]
		if item.Status == domain.StatusAvailable {
			continue
		}

		ref, err := sessiontag.Decode(item.Condition)
		if errors.Is(err, sessiontag.ErrNotTag) {
			continue
		}
		if err != nil {
			skipped++
			logger.Warn("skipping item with malformed session tag",
				"equipment_id", item.ID,
				"condition", item.Condition,
				"error", err,
			)
			continue
		}

		s, ok := byID[ref.SessionID]
		if !ok {
			session := ref.Session()
			s = &session
			byID[ref.SessionID] = s
			order = append(order, ref.SessionID)
		}
		if !s.HasItem(item.ID) {
			s.Items = append(s.Items, item.ID)
		}
	}

	sessions := make([]domain.Session, 0, len(order))
	for _, id := range order {
		sessions = append(sessions, *byID[id])
	}
	return sessions, skipped
}
