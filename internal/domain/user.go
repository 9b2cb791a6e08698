package domain

type Role string

const (
	RolePlanta   Role = "Planta CRTIC"
	RoleResident Role = "Residente"
	RoleDocente  Role = "Docente"
	RoleExternal Role = "Externo"
)

// IsInternal reports whether the role belongs to in-house staff.
func (r Role) IsInternal() bool {
	return r == RolePlanta
}

// ClaimStatus is the status an item takes when a user with this role
// takes it out.
func (r Role) ClaimStatus() EquipmentStatus {
	if r.IsInternal() {
		return StatusAssignedInternal
	}
	return StatusInUse
}

type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
	Area   string `json:"area,omitempty"`
	Active bool   `json:"active"`
}
