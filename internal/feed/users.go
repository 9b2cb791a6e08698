package feed

import (
	"strings"

	"github.com/DGApex/CRT-INV/internal/domain"
	"github.com/google/uuid"
)

func ParseUsers(rows []domain.Row) []domain.User {
	users := make([]domain.User, 0, len(rows))
	for _, row := range rows {
		id := LookupString(row, "Usuario_ID", "ID")
		if id == "" {
			id = uuid.New().String()
		}
		name := LookupString(row, "Nombre_Completo", "Nombre")
		if name == "" {
			name = "Desconocido"
		}

		users = append(users, domain.User{
			ID:     id,
			Name:   name,
			Role:   ParseRole(LookupString(row, "Tipo_Usuario", "Rol")),
			Area:   LookupString(row, "Área_o_Proyecto", "Area"),
			Active: parseActive(row),
		})
	}
	return users
}

func ParseRole(raw string) domain.Role {
	s := strings.ToLower(raw)
	switch {
	case strings.Contains(s, "planta") || strings.Contains(s, "admin"):
		return domain.RolePlanta
	case strings.Contains(s, "residente"):
		return domain.RoleResident
	case strings.Contains(s, "docente"):
		return domain.RoleDocente
	default:
		return domain.RoleExternal
	}
}

// parseActive treats a missing or blank Activo column as active; only an
// explicit no/false/0 deactivates a user.
func parseActive(row domain.Row) bool {
	switch strings.ToLower(LookupString(row, "Activo", "Active")) {
	case "no", "false", "0":
		return false
	default:
		return true
	}
}
