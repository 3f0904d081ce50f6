package models

import (
	"fmt"
	"time"
)

// EntityType identifies the business table a queue item refers to.
type EntityType string

const (
	EntityInvoice        EntityType = "Invoice"
	EntityPayment        EntityType = "Payment"
	EntityTreatment      EntityType = "Treatment"
	EntityAppointment    EntityType = "Appointment"
	EntityCustomer       EntityType = "Customer"
	EntityUser           EntityType = "User"
	EntityAccount        EntityType = "Account"
	EntityOperation      EntityType = "Operation"
	EntityProcedure      EntityType = "Procedure"
	EntityClassType      EntityType = "ClassType"
	EntityMedicalSheet   EntityType = "MedicalSheet"
	EntityRecall         EntityType = "Recall"
	EntityClinic         EntityType = "Clinic"
	EntityAccountSetting EntityType = "AccountSetting"
	EntityClinicSetting  EntityType = "ClinicSetting"
)

// EntityTypes lists every known entity type in a stable order.
var EntityTypes = []EntityType{
	EntityInvoice,
	EntityPayment,
	EntityTreatment,
	EntityAppointment,
	EntityCustomer,
	EntityUser,
	EntityAccount,
	EntityOperation,
	EntityProcedure,
	EntityClassType,
	EntityMedicalSheet,
	EntityRecall,
	EntityClinic,
	EntityAccountSetting,
	EntityClinicSetting,
}

func (t EntityType) Valid() bool {
	for _, known := range EntityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ChangeKind is the mutation recorded by a queue item.
type ChangeKind string

const (
	ChangeCreate ChangeKind = "CREATE"
	ChangeUpdate ChangeKind = "UPDATE"
	ChangeDelete ChangeKind = "DELETE"
)

func (k ChangeKind) Valid() bool {
	switch k {
	case ChangeCreate, ChangeUpdate, ChangeDelete:
		return true
	default:
		return false
	}
}

// Direction says which store is the source of a pass.
type Direction int

const (
	LocalToCloud Direction = iota + 1
	CloudToLocal
)

func (d Direction) String() string {
	switch d {
	case LocalToCloud:
		return "local_to_cloud"
	case CloudToLocal:
		return "cloud_to_local"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Side names one of the two stores.
type Side string

const (
	SideLocal Side = "local"
	SideCloud Side = "cloud"
)

// Origin returns the store whose queue feeds the pass.
func (d Direction) Origin() Side {
	if d == CloudToLocal {
		return SideCloud
	}
	return SideLocal
}

// QueueItem is one pending change captured in a store's sync_queue table.
// Only Processed, ProcessedAt, RetryCount and ErrorMessage change after insert.
type QueueItem struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	EntityType   EntityType `gorm:"size:32;not null;index:idx_sync_queue_entity" json:"entity_type"`
	EntityID     string     `gorm:"size:64;not null;index:idx_sync_queue_entity" json:"entity_id"`
	TenantID     int64      `gorm:"column:account_id;not null;index:idx_sync_queue_pending,priority:1" json:"account_id"`
	ChangeKind   ChangeKind `gorm:"column:change_type;size:16;not null" json:"change_type"`
	CreatedAt    time.Time  `gorm:"not null;autoCreateTime:false;index:idx_sync_queue_pending,priority:3" json:"created_at"`
	Processed    bool       `gorm:"not null;default:false;index:idx_sync_queue_pending,priority:2" json:"processed"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	RetryCount   int        `gorm:"not null;default:0" json:"retry_count"`
	ErrorMessage *string    `gorm:"type:text" json:"error_message,omitempty"`
	Sequence     *int64     `gorm:"column:order_nb" json:"order_nb,omitempty"`
}

func (QueueItem) TableName() string {
	return "sync_queue"
}

// QueueFilter narrows an operator listing of a queue. With Since set every
// item recorded after it is listed, processed or not; otherwise only pending
// items are. An empty EntityType matches all types.
type QueueFilter struct {
	EntityType EntityType
	Since      time.Time
}

// LastError returns the stored error message or an empty string.
func (q *QueueItem) LastError() string {
	if q.ErrorMessage == nil {
		return ""
	}
	return *q.ErrorMessage
}
