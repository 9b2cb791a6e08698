package domain

type AssignmentStatus string

const (
	AssignmentActive   AssignmentStatus = "Activa"
	AssignmentReturned AssignmentStatus = "Devuelto"
)

type Assignment struct {
	ID               string           `json:"id"`
	UserID           string           `json:"user_id"`
	EquipmentID      string           `json:"equipment_id"`
	Status           AssignmentStatus `json:"status"`
	AssignedDate     string           `json:"assigned_date"`
	ReturnDate       string           `json:"return_date,omitempty"`
	InitialCondition string           `json:"initial_condition"`
	ReturnCondition  string           `json:"return_condition,omitempty"`
	Observations     string           `json:"observations,omitempty"`
}

type CreateAssignmentRequest struct {
	UserID           string `json:"user_id" validate:"required"`
	EquipmentID      string `json:"equipment_id" validate:"required"`
	AssignedDate     string `json:"assigned_date"`
	InitialCondition string `json:"initial_condition"`
	Observations     string `json:"observations"`
}

type ReturnAssignmentRequest struct {
	ReturnCondition string `json:"return_condition"`
}
