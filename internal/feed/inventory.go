package feed

import (
	"strings"

	"github.com/DGApex/CRT-INV/internal/domain"
)

var (
	nameColumns      = []string{"Nombre_Equipo", "Nombre"}
	categoryColumns  = []string{"Categoría", "Categoria"}
	statusColumns    = []string{"Estado", "Status", "Estado Actual"}
	conditionColumns = []string{"Observaciones", "Observacion", "Notas", "Condición"}
	typeITColumns    = []string{"Tipo_de_TI", "Tipo"}
)

const defaultCategory = "Accesorios"

// ParseInventory converts inventory rows into equipment with resolved ids.
// Rows without a name are ghost rows left behind by the sheet and are
// skipped, as are rows that repeat an earlier id and name.
func ParseInventory(rows []domain.Row, idPrefix string) []domain.Equipment {
	resolver := NewResolver(idPrefix)
	items := make([]domain.Equipment, 0, len(rows))

	for pos, row := range rows {
		name := LookupString(row, nameColumns...)
		if name == "" {
			continue
		}
		category := LookupString(row, categoryColumns...)
		if category == "" {
			category = defaultCategory
		}

		id, dup := resolver.Resolve(LookupString(row, idColumns...), name, category, pos)
		if dup {
			continue
		}

		v, _ := Lookup(row, conditionColumns...)
		items = append(items, domain.Equipment{
			ID:        id,
			Name:      name,
			Category:  category,
			TypeIT:    LookupString(row, typeITColumns...),
			Status:    ParseStatus(LookupString(row, statusColumns...)),
			Condition: String(v),
		})
	}
	return items
}

// ParseStatus maps the free-form status column onto the four known states.
// Anything unrecognised, including an empty cell, means available.
func ParseStatus(raw string) domain.EquipmentStatus {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case s == "en uso" || strings.Contains(s, "vencido"):
		return domain.StatusInUse
	case strings.Contains(s, "asignado"):
		return domain.StatusAssignedInternal
	case strings.Contains(s, "mantenci") || strings.Contains(s, "repara") || strings.Contains(s, "dañado"):
		return domain.StatusMaintenance
	default:
		return domain.StatusAvailable
	}
}
