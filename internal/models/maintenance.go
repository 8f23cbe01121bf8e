package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Corrective maintenance priorities, most severe first.
const (
	PriorityP1 = "P1"
	PriorityP2 = "P2"
	PriorityP3 = "P3"
	PriorityP4 = "P4"
)

// Corrective maintenance work order statuses.
const (
	CMStatusOpen       = "Open"
	CMStatusInProgress = "In Progress"
	CMStatusClosed     = "Closed"
	CMStatusCompleted  = "Completed"
)

// PMCompletion is a completed preventive maintenance task.
type PMCompletion struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	EquipmentNo    string             `bson:"bfm_equipment_no" json:"equipment_no"`
	PMType         string             `bson:"pm_type" json:"pm_type"` // "Monthly", "Six Month", "Annual"
	CompletionDate time.Time          `bson:"completion_date" json:"completion_date"`
	LaborHours     float64            `bson:"labor_hours" json:"labor_hours"`
	LaborMinutes   float64            `bson:"labor_minutes" json:"labor_minutes"`
	Technician     string             `bson:"technician" json:"technician"`
}

// Hours returns the total PM duration in hours.
func (p PMCompletion) Hours() float64 {
	return p.LaborHours + p.LaborMinutes/60.0
}

// CorrectiveEvent is a corrective maintenance (failure/repair) work order.
type CorrectiveEvent struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	CMNumber     string             `bson:"cm_number" json:"cm_number"`
	EquipmentNo  string             `bson:"bfm_equipment_no" json:"equipment_no"`
	Description  string             `bson:"description" json:"description"`
	Priority     string             `bson:"priority" json:"priority"`
	Status       string             `bson:"status" json:"status"`
	ReportedDate time.Time          `bson:"reported_date" json:"reported_date"`
	LaborHours   float64            `bson:"labor_hours" json:"labor_hours"`
}

// Closed reports whether the work order has been closed out.
func (c CorrectiveEvent) Closed() bool {
	return c.Status == CMStatusClosed || c.Status == CMStatusCompleted
}

// Severity maps the work order priority to a numeric weight (P1=4 .. P4=1, unknown=0).
func (c CorrectiveEvent) Severity() float64 {
	switch c.Priority {
	case PriorityP1:
		return 4
	case PriorityP2:
		return 3
	case PriorityP3:
		return 2
	case PriorityP4:
		return 1
	default:
		return 0
	}
}

// PartsRequest is a parts request raised against a corrective work order.
type PartsRequest struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	EquipmentNo   string             `bson:"bfm_equipment_no" json:"equipment_no"`
	CMNumber      string             `bson:"cm_number" json:"cm_number"`
	PartNumber    string             `bson:"part_number" json:"part_number"`
	Quantity      int                `bson:"quantity" json:"quantity"`
	RequestedDate time.Time          `bson:"requested_date" json:"requested_date"`
}
