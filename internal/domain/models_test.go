package domain

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:domain_models_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Enforce FKs so cascades actually execute.
	db.Exec("PRAGMA foreign_keys=ON;")
	return db
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		(Complaint{}).TableName():       "complaints",
		(ComplaintUpdate{}).TableName(): "complaint_updates",
		(NotificationLog{}).TableName(): "notifications_log",
		(AdminUser{}).TableName():       "admin_users",
		(AdminActivity{}).TableName():   "admin_activity_log",
		(Department{}).TableName():      "departments",
		(Idempotency{}).TableName():     "idempotency",
		(User{}).TableName():            "users",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestMigrations_Indexes_AndForeignKey(t *testing.T) {
	db := newDomainDB(t)

	if err := db.AutoMigrate(&Complaint{}, &ComplaintUpdate{}, &NotificationLog{}, &AdminUser{}, &AdminActivity{}, &Department{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()
	if !m.HasIndex(&ComplaintUpdate{}, "idx_updates_tracking") {
		t.Fatalf("expected index idx_updates_tracking on complaint_updates")
	}

	// History rows cannot reference a complaint that does not exist.
	orphan := ComplaintUpdate{
		ID:         uuid.NewString(),
		TrackingID: "CIV-00000000",
		Status:     StatusPending,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := db.Create(&orphan).Error; err == nil {
		t.Fatalf("expected FK violation for orphan history entry")
	}

	now := time.Now().UTC()
	c := Complaint{
		TrackingID:  "CIV-12345678",
		IssueType:   IssueTypePothole,
		Severity:    SeverityHigh,
		Department:  DepartmentFor(IssueTypePothole),
		Status:      StatusPending,
		Location:    "Main Street",
		Description: "big pothole",
		Modality:    ModalityText,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.Create(&c).Error; err != nil {
		t.Fatalf("create complaint: %v", err)
	}
	u := ComplaintUpdate{ID: uuid.NewString(), TrackingID: c.TrackingID, Status: StatusPending, UpdatedAt: now}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("create update: %v", err)
	}

	var got Complaint
	if err := db.Preload("Updates").First(&got, "tracking_id = ?", c.TrackingID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Department != DeptRoads || got.Status != StatusPending || len(got.Updates) != 1 {
		t.Fatalf("unexpected row: %+v", got)
	}

	// Deleting the complaint cascades to its history.
	if err := db.Delete(&Complaint{}, "tracking_id = ?", c.TrackingID).Error; err != nil {
		t.Fatalf("delete complaint: %v", err)
	}
	var left int64
	db.Model(&ComplaintUpdate{}).Where("tracking_id = ?", c.TrackingID).Count(&left)
	if left != 0 {
		t.Fatalf("history should cascade, %d rows left", left)
	}
}

type fkRow struct {
	Table string
	From  string
	To    string
}

func foreignKeys(t *testing.T, db *gorm.DB, table string) []fkRow {
	t.Helper()
	var rows []fkRow
	if err := db.Raw("SELECT \"table\", \"from\", \"to\" FROM pragma_foreign_key_list(?)", table).Scan(&rows).Error; err != nil {
		t.Fatalf("foreign_key_list(%s): %v", table, err)
	}
	return rows
}

func TestMigrations_HistoryReferencesComplaint(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&Complaint{}, &ComplaintUpdate{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	if fks := foreignKeys(t, db, "complaints"); len(fks) != 0 {
		t.Fatalf("complaints must not reference another table: %+v", fks)
	}
	fks := foreignKeys(t, db, "complaint_updates")
	if len(fks) != 1 || fks[0].Table != "complaints" || fks[0].From != "tracking_id" || fks[0].To != "tracking_id" {
		t.Fatalf("complaint_updates foreign key = %+v", fks)
	}
}

func TestAdminUser_UsernameUnique(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&AdminUser{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	a := AdminUser{ID: uuid.NewString(), Username: "ops", PasswordHash: "x", Role: "admin"}
	if err := db.Create(&a).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	b := AdminUser{ID: uuid.NewString(), Username: "ops", PasswordHash: "y", Role: "admin"}
	if err := db.Create(&b).Error; err == nil {
		t.Fatalf("expected unique violation on username")
	}
}
