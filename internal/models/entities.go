package models

import "time"

// Статусы записей. Удаление везде логическое.
const (
	StatusActive  = 1
	StatusDeleted = 2

	RecallStatusScheduled = 1
	RecallStatusCancelled = 2
	RecallStatusCalled    = 3
)

// Syncable is implemented by every record that takes part in synchronization.
type Syncable interface {
	LastUpdated() *time.Time
}

// SoftDeletable records flip a status column instead of being removed.
type SoftDeletable interface {
	MarkDeleted()
}

// Record holds the columns shared by uuid-keyed tenant tables.
type Record struct {
	ID        string     `gorm:"primaryKey;size:36" json:"id"`
	AccountID int64      `gorm:"not null;index" json:"account_id"`
	Status    int        `gorm:"not null" json:"status"`
	CreatedAt *time.Time `gorm:"autoCreateTime:false" json:"created_at,omitempty"`
	UpdatedAt *time.Time `gorm:"autoUpdateTime:false" json:"updated_at,omitempty"`
}

func (r *Record) LastUpdated() *time.Time { return r.UpdatedAt }

func (r *Record) MarkDeleted() { r.Status = StatusDeleted }

// identity returns the fields a record keeps when it adopts another copy.
func (r *Record) identity() Record {
	return Record{ID: r.ID, AccountID: r.AccountID, CreatedAt: r.CreatedAt}
}

func (r *Record) restoreIdentity(kept Record) {
	r.ID = kept.ID
	r.AccountID = kept.AccountID
	r.CreatedAt = kept.CreatedAt
}

type Customer struct {
	Record
	FirstName       string     `gorm:"size:128" json:"first_name"`
	MiddleName      string     `gorm:"size:128" json:"middle_name"`
	LastName        string     `gorm:"size:128" json:"last_name"`
	Email           string     `gorm:"size:255" json:"email"`
	ReferenceNumber string     `gorm:"size:64" json:"reference_number"`
	Address         string     `json:"address"`
	MobileNumber    string     `gorm:"size:32" json:"mobile_number"`
	HomeNumber      string     `gorm:"size:32" json:"home_number"`
	Gender          string     `gorm:"size:16" json:"gender"`
	Notes           string     `gorm:"type:text" json:"notes"`
	MedicalHistory  string     `gorm:"type:text" json:"medical_history"`
	ClassTypeID     *string    `gorm:"size:36" json:"class_type_id,omitempty"`
	NextAppointment *time.Time `json:"next_appointment,omitempty"`
	Referral        string     `json:"referral"`
}

type Appointment struct {
	Record
	CustomerID      string    `gorm:"size:36;index" json:"customer_id"`
	ClinicID        *string   `gorm:"size:36" json:"clinic_id,omitempty"`
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
	Title           string    `json:"title"`
}

type Payment struct {
	Record
	InvoiceID       *string `gorm:"size:36;index" json:"invoice_id,omitempty"`
	CustomerID      string  `gorm:"size:36;index" json:"customer_id"`
	ReferenceNumber string  `gorm:"size:64" json:"reference_number"`
	Amount          float64 `gorm:"type:numeric(14,2)" json:"amount"`
	Currency        string  `gorm:"size:3" json:"currency"`
	Method          string  `gorm:"size:32" json:"method"`
}

type Procedure struct {
	Record
	Code        string  `gorm:"size:32" json:"code"`
	Category    string  `gorm:"size:64" json:"category"`
	Name        string  `json:"name"`
	Price       float64 `gorm:"type:numeric(14,2)" json:"price"`
	PricingType string  `gorm:"size:32" json:"pricing_type"`
	Display     string  `json:"display"`
}

type ClassType struct {
	Record
	Name  string `json:"name"`
	Color string `gorm:"size:16" json:"color"`
}

type MedicalSheet struct {
	Record
	CustomerID         string `gorm:"size:36;index" json:"customer_id"`
	BloodTest          bool   `json:"blood_test"`
	Cardiac            bool   `json:"cardiac"`
	Hematologic        bool   `json:"hematologic"`
	Hepatic            bool   `json:"hepatic"`
	Endocrine          bool   `json:"endocrine"`
	Respiratory        bool   `json:"respiratory"`
	Allergic           bool   `json:"allergic"`
	Medication         bool   `json:"medication"`
	AbnormalBleeding   bool   `json:"abnormal_bleeding"`
	PreviousAnesthesia bool   `json:"previous_anesthesia"`
	Smoking            bool   `json:"smoking"`
	Pregnancy          bool   `json:"pregnancy"`
	Notes              string `gorm:"type:text" json:"notes"`
}

type Recall struct {
	Record
	CustomerID             string     `gorm:"size:36;index" json:"customer_id"`
	RecallDate             time.Time  `json:"recall_date"`
	RecallType             string     `gorm:"size:64" json:"recall_type"`
	Notes                  string     `gorm:"type:text" json:"notes"`
	CalledDate             *time.Time `json:"called_date,omitempty"`
	ScheduledAppointmentID *string    `gorm:"size:36" json:"scheduled_appointment_id,omitempty"`
}

// MarkDeleted cancels the recall; recalls have no separate deleted status.
func (r *Recall) MarkDeleted() { r.Status = RecallStatusCancelled }

type User struct {
	Record
	Username  string `gorm:"size:64;index" json:"username"`
	FirstName string `gorm:"size:128" json:"first_name"`
	LastName  string `gorm:"size:128" json:"last_name"`
	Email     string `gorm:"size:255" json:"email"`
	Phone     string `gorm:"size:32" json:"phone"`
	Password  string `json:"-"`
}

// Account is the tenant row itself; its key is the tenant id.
type Account struct {
	ID          int64      `gorm:"column:account_id;primaryKey;autoIncrement:false" json:"account_id"`
	AccountName string     `json:"account_name"`
	Email       string     `gorm:"size:255" json:"email"`
	Website     string     `json:"website"`
	Phone       string     `gorm:"size:32" json:"phone"`
	Address     string     `json:"address"`
	CreatedAt   *time.Time `gorm:"autoCreateTime:false" json:"created_at,omitempty"`
	UpdatedAt   *time.Time `gorm:"autoUpdateTime:false" json:"updated_at,omitempty"`
}

func (a *Account) LastUpdated() *time.Time { return a.UpdatedAt }

// Clinic is keyed by a numeric clinic id within a tenant.
type Clinic struct {
	ID         int64      `gorm:"column:clinic_id;primaryKey;autoIncrement:false" json:"clinic_id"`
	AccountID  int64      `gorm:"not null;index" json:"account_id"`
	ClinicName string     `json:"clinic_name"`
	Status     int        `gorm:"not null" json:"status"`
	CreatedAt  *time.Time `gorm:"autoCreateTime:false" json:"created_at,omitempty"`
	UpdatedAt  *time.Time `gorm:"autoUpdateTime:false" json:"updated_at,omitempty"`
}

func (c *Clinic) LastUpdated() *time.Time { return c.UpdatedAt }

func (c *Clinic) MarkDeleted() { c.Status = StatusDeleted }

type AccountSetting struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	AccountID    int64      `gorm:"not null;index" json:"account_id"`
	SettingKey   string     `gorm:"size:128;not null" json:"setting_key"`
	SettingValue string     `gorm:"type:text" json:"setting_value"`
	Description  string     `json:"description"`
	CreatedAt    *time.Time `gorm:"autoCreateTime:false" json:"created_at,omitempty"`
	UpdatedAt    *time.Time `gorm:"autoUpdateTime:false" json:"updated_at,omitempty"`
}

func (s *AccountSetting) LastUpdated() *time.Time { return s.UpdatedAt }

type ClinicSetting struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	AccountID    int64      `gorm:"not null;index" json:"account_id"`
	ClinicID     *string    `gorm:"size:36" json:"clinic_id,omitempty"`
	SettingKey   string     `gorm:"size:128;not null" json:"setting_key"`
	SettingValue string     `gorm:"type:text" json:"setting_value"`
	Description  string     `json:"description"`
	CreatedAt    *time.Time `gorm:"autoCreateTime:false" json:"created_at,omitempty"`
	UpdatedAt    *time.Time `gorm:"autoUpdateTime:false" json:"updated_at,omitempty"`
}

func (s *ClinicSetting) LastUpdated() *time.Time { return s.UpdatedAt }

// AllEntities returns one zero value of every synced table for migrations.
func AllEntities() []interface{} {
	return []interface{}{
		&QueueItem{},
		&Customer{},
		&Appointment{},
		&Payment{},
		&Procedure{},
		&ClassType{},
		&MedicalSheet{},
		&Recall{},
		&User{},
		&Account{},
		&Clinic{},
		&AccountSetting{},
		&ClinicSetting{},
		&Invoice{},
		&InvoiceItem{},
		&InvoiceAllocation{},
		&Operation{},
		&OperationTooth{},
		&Treatment{},
		&TreatmentTooth{},
	}
}
