package models

import "time"

// Invoice owns line items and payment allocations. Both collections are
// replaced as a whole when a newer invoice wins a merge.
type Invoice struct {
	Record
	InvNumber           string              `gorm:"size:64;index" json:"inv_number"`
	CustomerID          string              `gorm:"size:36;index" json:"customer_id"`
	IssueDate           time.Time           `json:"issue_date"`
	OriginalAmount      float64             `gorm:"type:numeric(14,2)" json:"original_amount"`
	DiscountType        string              `gorm:"size:16" json:"discount_type"`
	DiscountValue       float64             `gorm:"type:numeric(14,2)" json:"discount_value"`
	TotalDiscountAmount float64             `gorm:"type:numeric(14,2)" json:"total_discount_amount"`
	FinalAmount         float64             `gorm:"type:numeric(14,2)" json:"final_amount"`
	PaymentAmount       float64             `gorm:"type:numeric(14,2)" json:"payment_amount"`
	PaymentStatus       int                 `json:"payment_status"`
	Items               []InvoiceItem       `gorm:"foreignKey:InvoiceID;references:ID" json:"items"`
	Allocations         []InvoiceAllocation `gorm:"foreignKey:InvoiceID;references:ID" json:"allocations"`
}

type InvoiceItem struct {
	ID             string  `gorm:"primaryKey;size:36" json:"id"`
	InvoiceID      string  `gorm:"size:36;not null;index" json:"invoice_id"`
	OperationID    *string `gorm:"size:36" json:"operation_id,omitempty"`
	Code           string  `gorm:"size:32" json:"code"`
	Name           string  `json:"name"`
	Price          float64 `gorm:"type:numeric(14,2)" json:"price"`
	DiscountAmount float64 `gorm:"type:numeric(14,2)" json:"discount_amount"`
	FinalPrice     float64 `gorm:"type:numeric(14,2)" json:"final_price"`
	Status         int     `json:"status"`
}

type InvoiceAllocation struct {
	ID        string  `gorm:"primaryKey;size:36" json:"id"`
	InvoiceID string  `gorm:"size:36;not null;index" json:"invoice_id"`
	Amount    float64 `gorm:"type:numeric(14,2)" json:"amount"`
	Currency  string  `gorm:"size:3" json:"currency"`
	Status    int     `json:"status"`
}

// AdoptFrom copies the winner's fields and children onto the receiver while
// keeping the receiver's id, account and creation time. Children are
// re-parented to the receiver.
func (inv *Invoice) AdoptFrom(winner *Invoice) {
	kept := inv.identity()
	id := kept.ID
	items := make([]InvoiceItem, len(winner.Items))
	for i, it := range winner.Items {
		it.InvoiceID = id
		items[i] = it
	}
	allocations := make([]InvoiceAllocation, len(winner.Allocations))
	for i, a := range winner.Allocations {
		a.InvoiceID = id
		allocations[i] = a
	}

	*inv = *winner
	inv.restoreIdentity(kept)
	inv.Items = items
	inv.Allocations = allocations
}

// Operation carries per-tooth annotations.
type Operation struct {
	Record
	CustomerID  string           `gorm:"size:36;index" json:"customer_id"`
	DoctorID    *string          `gorm:"size:36" json:"doctor_id,omitempty"`
	ClinicID    *int64           `json:"clinic_id,omitempty"`
	ProcedureID *string          `gorm:"size:36" json:"procedure_id,omitempty"`
	TreatmentID *string          `gorm:"size:36" json:"treatment_id,omitempty"`
	OperateDate time.Time        `json:"operate_date"`
	Description string           `gorm:"type:text" json:"description"`
	Fee         float64          `gorm:"type:numeric(14,2)" json:"fee"`
	Billed      bool             `json:"billed"`
	Teeth       []OperationTooth `gorm:"foreignKey:OperationID;references:ID" json:"teeth"`
}

type OperationTooth struct {
	OperationID string `gorm:"primaryKey;size:36" json:"operation_id"`
	ToothNumber int    `gorm:"primaryKey;autoIncrement:false" json:"tooth_number"`
	Surface     string `gorm:"size:16" json:"surface"`
}

func (op *Operation) AdoptFrom(winner *Operation) {
	kept := op.identity()
	id := kept.ID
	teeth := make([]OperationTooth, len(winner.Teeth))
	for i, t := range winner.Teeth {
		t.OperationID = id
		teeth[i] = t
	}

	*op = *winner
	op.restoreIdentity(kept)
	op.Teeth = teeth
}

type Treatment struct {
	Record
	CustomerID  string           `gorm:"size:36;index" json:"customer_id"`
	OperationID *string          `gorm:"size:36" json:"operation_id,omitempty"`
	ProcedureID *string          `gorm:"size:36" json:"procedure_id,omitempty"`
	OperateDate time.Time        `json:"operate_date"`
	Description string           `gorm:"type:text" json:"description"`
	Fee         float64          `gorm:"type:numeric(14,2)" json:"fee"`
	Teeth       []TreatmentTooth `gorm:"foreignKey:TreatmentID;references:ID" json:"teeth"`
}

type TreatmentTooth struct {
	TreatmentID string `gorm:"primaryKey;size:36" json:"treatment_id"`
	ToothNumber int    `gorm:"primaryKey;autoIncrement:false" json:"tooth_number"`
	Surface     string `gorm:"size:16" json:"surface"`
}

func (tr *Treatment) AdoptFrom(winner *Treatment) {
	kept := tr.identity()
	id := kept.ID
	teeth := make([]TreatmentTooth, len(winner.Teeth))
	for i, t := range winner.Teeth {
		t.TreatmentID = id
		teeth[i] = t
	}

	*tr = *winner
	tr.restoreIdentity(kept)
	tr.Teeth = teeth
}
