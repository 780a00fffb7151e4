package services

import (
	"path/filepath"
	"testing"
	"time"

	"marketplace-review-api/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(
		sqlite.Open(filepath.Join(t.TempDir(), "review.db")),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)},
	)
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Role{},
		&models.User{},
		&models.Webapp{},
		&models.Version{},
		&models.File{},
		&models.EscalationQueue{},
		&models.RereviewQueue{},
		&models.ReviewerScore{},
		&models.ReviewNote{},
	))

	roles := []models.Role{
		{RoleID: models.RoleDeveloper, RoleName: "Developer", ExcludeFromLeaderboard: true},
		{RoleID: models.RoleReviewer, RoleName: "Reviewer"},
		{RoleID: models.RoleSeniorReviewer, RoleName: "Senior Reviewer"},
		{RoleID: models.RoleAdmin, RoleName: "Admin"},
	}
	require.NoError(t, db.Create(&roles).Error)
	return db
}

func seedUser(t *testing.T, db *gorm.DB, name string, roleID int) models.User {
	t.Helper()
	user := models.User{
		DisplayName: name,
		Email:       name + "@example.com",
		RoleID:      roleID,
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

type appSpec struct {
	name        string
	status      models.Status
	publishType models.PublishType
	packaged    bool
	privileged  bool
	priority    bool
	deviceCount int
	region      string
	nominated   time.Time
}

// seedApp creates a webapp with one version carrying one pending file, the
// shape a fresh submission arrives in.
func seedApp(t *testing.T, db *gorm.DB, spec appSpec) models.Webapp {
	t.Helper()

	author := seedUser(t, db, spec.name+"-author", models.RoleDeveloper)
	if spec.deviceCount == 0 {
		spec.deviceCount = 1
	}
	if spec.nominated.IsZero() {
		spec.nominated = time.Now().Add(-time.Hour)
	}

	app := models.Webapp{
		Name:           spec.name,
		Slug:           spec.name,
		Status:         spec.status,
		PublishType:    spec.publishType,
		IsPackaged:     spec.packaged,
		PriorityReview: spec.priority,
		DeviceCount:    spec.deviceCount,
		AuthorID:       author.UserID,
	}
	if spec.region != "" {
		app.Region = &spec.region
	}
	require.NoError(t, db.Create(&app).Error)

	addVersion(t, db, &app, spec.privileged, models.StatusPending, spec.nominated)
	return app
}

// addVersion appends a version with one file and repoints latest_version_id.
func addVersion(t *testing.T, db *gorm.DB, app *models.Webapp,
	privileged bool, fileStatus models.Status, nominated time.Time) models.Version {
	t.Helper()

	version := models.Version{
		WebappID:     app.WebappID,
		Nomination:   &nominated,
		IsPrivileged: privileged,
	}
	require.NoError(t, db.Create(&version).Error)

	file := models.File{
		VersionID: version.VersionID,
		Filename:  "app.zip",
		Status:    fileStatus,
	}
	require.NoError(t, db.Create(&file).Error)

	require.NoError(t, db.Model(app).Update("latest_version_id", version.VersionID).Error)
	app.LatestVersionID = &version.VersionID
	return version
}

func reloadApp(t *testing.T, db *gorm.DB, id uint) models.Webapp {
	t.Helper()
	var app models.Webapp
	require.NoError(t, db.First(&app, "webapp_id = ?", id).Error)
	return app
}

func fileStatuses(t *testing.T, db *gorm.DB, versionID uint) []models.Status {
	t.Helper()
	var files []models.File
	require.NoError(t, db.Where("version_id = ?", versionID).Find(&files).Error)
	statuses := make([]models.Status, 0, len(files))
	for _, f := range files {
		statuses = append(statuses, f.Status)
	}
	return statuses
}
