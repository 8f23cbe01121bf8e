package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Equipment statuses recorded by the CMMS.
const (
	StatusActive       = "Active"
	StatusRunToFailure = "Run to Failure"
	StatusDeactivated  = "Deactivated"
)

// Equipment represents one maintained asset as recorded by the CMMS.
type Equipment struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	EquipmentNo string             `bson:"bfm_equipment_no" json:"equipment_no"`
	Description string             `bson:"description" json:"description"`
	Location    string             `bson:"location" json:"location"`
	Status      string             `bson:"status" json:"status"`
	MonthlyPM   bool               `bson:"monthly_pm" json:"monthly_pm"`
	SixMonthPM  bool               `bson:"six_month_pm" json:"six_month_pm"`
	AnnualPM    bool               `bson:"annual_pm" json:"annual_pm"`
	// CreatedDate is kept as the CMMS stores it ("2006-01-02", RFC3339, or empty).
	CreatedDate string `bson:"created_date" json:"created_date"`
}

// EligibleForPrediction reports whether the equipment is in scope for risk scoring.
func (e Equipment) EligibleForPrediction() bool {
	return e.Status == StatusActive || e.Status == StatusRunToFailure
}

// EligibleStatuses lists the statuses accepted by EligibleForPrediction.
func EligibleStatuses() []string {
	return []string{StatusActive, StatusRunToFailure}
}
