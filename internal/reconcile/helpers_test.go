package reconcile

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/DGApex/CRT-INV/internal/domain"
)

var testNow = time.Date(2024, 1, 10, 15, 30, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestReconciler() *Reconciler {
	n := 0
	return New(
		WithLogger(quietLogger()),
		WithClock(func() time.Time { return testNow }),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}),
	)
}

func testSnapshot() *domain.Snapshot {
	snap := domain.NewSnapshot()
	snap.Users = []domain.User{
		{ID: "U1", Name: "Ana Planta", Role: domain.RolePlanta, Active: true},
		{ID: "U7", Name: "Eva Externa", Role: domain.RoleExternal, Active: true},
	}
	snap.Equipment = []domain.Equipment{
		{ID: "CAM", Name: "Camera", Category: "Video", Status: domain.StatusAvailable, Condition: "Ok"},
		{ID: "MIC", Name: "Microphone", Category: "Audio profesional", Status: domain.StatusAvailable, Condition: "Ok"},
		{ID: "TRI", Name: "Tripod", Category: "Accesorios", Status: domain.StatusAvailable, Condition: "Ok"},
		{ID: "LED", Name: "Led panel", Category: "Iluminación", Status: domain.StatusMaintenance, Condition: "En reparación"},
	}
	return snap
}

func item(t interface{ Fatalf(string, ...any) }, snap *domain.Snapshot, id string) domain.Equipment {
	i := snap.EquipmentIndex(id)
	if i < 0 {
		t.Fatalf("item %s not in snapshot", id)
	}
	return snap.Equipment[i]
}
