package domain

import "time"

// Modality records which kind of citizen input produced a complaint.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
	ModalityAudio Modality = "audio"
)

// Complaint is the central entity, keyed by its public tracking ID.
//
// Fields:
//   - TrackingID: immutable public handle (e.g. CIV-04839217).
//   - IssueType / Severity / Department: classification triple; Department is
//     always DepartmentFor(IssueType).
//   - Status: lifecycle state, initially Pending.
//   - Location / District: where the problem is.
//   - Description: citizen text, or caption/transcript plus citizen notes.
//   - EvidenceText: the normalized text that was fed to the classifier.
//   - ContactEmail / ContactPhone: optional; anonymous reporting is allowed.
//   - ImageRef / AudioRef: object store keys of uploaded evidence.
//   - AdminNotes: set only by admin status transitions.
type Complaint struct {
	TrackingID   string    `json:"tracking_id"             gorm:"type:varchar(32);primaryKey"`
	IssueType    IssueType `json:"issue_type"              gorm:"type:varchar(32);not null;index"`
	Severity     Severity  `json:"severity"                gorm:"type:varchar(16);not null;index"`
	Department   string    `json:"department"              gorm:"type:varchar(64);not null"`
	Status       Status    `json:"status"                  gorm:"type:varchar(16);not null;default:'Pending';index"`
	Location     string    `json:"location"                gorm:"type:text;not null"`
	District     string    `json:"district,omitempty"      gorm:"type:varchar(128);index"`
	Description  string    `json:"description"             gorm:"type:text;not null"`
	EvidenceText string    `json:"evidence_text,omitempty" gorm:"type:text"`
	Modality     Modality  `json:"modality"                gorm:"type:varchar(8);not null;default:'text'"`
	Language     string    `json:"language,omitempty"      gorm:"type:varchar(16)"`
	Classifier   string    `json:"classifier,omitempty"    gorm:"type:varchar(32)"`
	ContactEmail string    `json:"contact_email,omitempty" gorm:"type:varchar(255);index"`
	ContactPhone string    `json:"contact_phone,omitempty" gorm:"type:varchar(32)"`
	ImageRef     string    `json:"image_ref,omitempty"     gorm:"type:varchar(255)"`
	AudioRef     string    `json:"audio_ref,omitempty"     gorm:"type:varchar(255)"`
	AdminNotes   string    `json:"admin_notes,omitempty"   gorm:"type:text"`
	CreatedAt    time.Time `json:"created_at"              gorm:"not null;index"`
	UpdatedAt    time.Time `json:"updated_at"              gorm:"not null"`

	// Updates is the history; complaint_updates.tracking_id references
	// complaints.tracking_id. Loaded only on explicit Preload.
	Updates []ComplaintUpdate `json:"-" gorm:"foreignKey:TrackingID;references:TrackingID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Complaint.
func (Complaint) TableName() string { return "complaints" }

// ComplaintUpdate is one append-only history entry, written for every status
// write including the initial Pending state.
type ComplaintUpdate struct {
	ID             string    `json:"id"                        gorm:"type:char(36);primaryKey"`
	TrackingID     string    `json:"tracking_id"               gorm:"type:varchar(32);not null;index:idx_updates_tracking,priority:1"`
	Status         Status    `json:"status"                    gorm:"type:varchar(16);not null"`
	PreviousStatus Status    `json:"previous_status,omitempty" gorm:"type:varchar(16)"`
	Notes          string    `json:"notes,omitempty"           gorm:"type:text"`
	Actor          string    `json:"actor,omitempty"           gorm:"type:varchar(64)"`
	UpdatedAt      time.Time `json:"updated_at"                gorm:"not null;index:idx_updates_tracking,priority:2"`
}

// TableName returns the database table name for ComplaintUpdate.
func (ComplaintUpdate) TableName() string { return "complaint_updates" }

// Notification outcome values recorded in NotificationLog.Status.
const (
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
	NotificationSkipped = "skipped"
)

// NotificationLog records each delivery attempt to a citizen.
type NotificationLog struct {
	ID         string    `json:"id"              gorm:"type:char(36);primaryKey"`
	TrackingID string    `json:"tracking_id"     gorm:"type:varchar(32);not null;index"`
	Channel    string    `json:"channel"         gorm:"type:varchar(8);not null"`  // email|sms
	Kind       string    `json:"kind"            gorm:"type:varchar(16);not null"` // created|status
	Recipient  string    `json:"recipient"       gorm:"type:varchar(255)"`
	Message    string    `json:"message"         gorm:"type:text"`
	Status     string    `json:"status"          gorm:"type:varchar(8);not null"`
	Error      string    `json:"error,omitempty" gorm:"type:text"`
	SentAt     time.Time `json:"sent_at"         gorm:"not null"`
}

// TableName returns the database table name for NotificationLog.
func (NotificationLog) TableName() string { return "notifications_log" }

// AdminUser is an operator allowed to triage complaints.
type AdminUser struct {
	ID           string     `json:"id"                   gorm:"type:char(36);primaryKey"`
	Username     string     `json:"username"             gorm:"type:varchar(64);not null;uniqueIndex"`
	PasswordHash string     `json:"-"                    gorm:"type:varchar(255);not null"`
	FullName     string     `json:"full_name,omitempty"  gorm:"type:varchar(128)"`
	Role         string     `json:"role"                 gorm:"type:varchar(16);not null;default:'admin'"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// TableName returns the database table name for AdminUser.
func (AdminUser) TableName() string { return "admin_users" }

// AdminActivity is an audit row for an administrative action.
type AdminActivity struct {
	ID          string    `json:"id"                    gorm:"type:char(36);primaryKey"`
	AdminID     string    `json:"admin_id"              gorm:"type:varchar(64);not null;index"`
	ActionType  string    `json:"action_type"           gorm:"type:varchar(32);not null"`
	TrackingID  string    `json:"tracking_id,omitempty" gorm:"type:varchar(32);index"`
	Description string    `json:"description"           gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at"            gorm:"not null;index"`
}

// TableName returns the database table name for AdminActivity.
func (AdminActivity) TableName() string { return "admin_activity_log" }

// Department is the reference row for a civic authority.
type Department struct {
	Name         string `json:"name"                    gorm:"type:varchar(64);primaryKey"`
	IssueTypes   string `json:"issue_types"             gorm:"type:text"` // comma-separated
	ContactEmail string `json:"contact_email,omitempty" gorm:"type:varchar(255)"`
}

// TableName returns the database table name for Department.
func (Department) TableName() string { return "departments" }

// User is a citizen account. "My complaints" are the complaints filed with
// the account's e-mail as contact address.
type User struct {
	ID           string     `json:"id"                   gorm:"type:char(36);primaryKey"`
	Email        string     `json:"email"                gorm:"type:varchar(255);not null;uniqueIndex"`
	PasswordHash string     `json:"-"                    gorm:"type:varchar(255);not null"`
	Name         string     `json:"name,omitempty"       gorm:"type:varchar(128)"`
	Phone        string     `json:"phone,omitempty"      gorm:"type:varchar(32)"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }
