package domain

type EquipmentStatus string

const (
	StatusAvailable        EquipmentStatus = "Disponible"
	StatusInUse            EquipmentStatus = "En uso"
	StatusAssignedInternal EquipmentStatus = "Asignado interno"
	StatusMaintenance      EquipmentStatus = "Mantención"
)

// Conditions written back to the sheet when items are released.
const (
	ConditionReturned   = "Devuelto"
	ConditionReturnedOK = "Devuelto Ok"
)

type Equipment struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	TypeIT    string          `json:"type_it,omitempty"`
	Status    EquipmentStatus `json:"status"`
	Condition string          `json:"condition"`
}

func (e *Equipment) IsAvailable() bool {
	return e.Status == StatusAvailable
}

// IsClaimed reports whether the status is one a session or assignment holds.
func (s EquipmentStatus) IsClaimed() bool {
	return s == StatusInUse || s == StatusAssignedInternal
}
