package services

import (
	"errors"
	"testing"
	"time"

	"marketplace-review-api/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failSigner struct{}

func (failSigner) Sign(versionID uint) (string, error) {
	return "", errors.New("signing server unreachable")
}

func TestApproveHostedPublishesImmediately(t *testing.T) {
	db := newTestDB(t)
	reviewer := seedUser(t, db, "rev", models.RoleReviewer)
	app := seedApp(t, db, appSpec{name: "calc", status: models.StatusPending})

	svc := NewReviewService(db, nil)
	result, err := svc.PerformAction(app.WebappID, 0, ActionApprove,
		ActionPayload{Comments: "looks good"}, reviewer)
	require.NoError(t, err)

	assert.Equal(t, models.StatusPublic, result.NewStatus)
	assert.Equal(t, 60, result.PointsAwarded)

	got := reloadApp(t, db, app.WebappID)
	assert.Equal(t, models.StatusPublic, got.Status)
	require.NotNil(t, got.CurrentVersionID)
	assert.Equal(t, *app.LatestVersionID, *got.CurrentVersionID)
	assert.Equal(t, []models.Status{models.StatusPublic}, fileStatuses(t, db, *app.LatestVersionID))

	var version models.Version
	require.NoError(t, db.First(&version, "version_id = ?", *app.LatestVersionID).Error)
	assert.NotNil(t, version.Reviewed)

	var note models.ReviewNote
	require.NoError(t, db.First(&note, "webapp_id = ?", app.WebappID).Error)
	assert.True(t, note.VisibleToDeveloper)
	assert.Equal(t, "looks good", note.Body)

	kinds := make([]EventKind, 0, len(result.Events))
	for _, event := range result.Events {
		kinds = append(kinds, event.Kind)
	}
	assert.ElementsMatch(t, []EventKind{EventReindex, EventNotify, EventStorefront}, kinds)
}

func TestApproveHiddenGoesUnlisted(t *testing.T) {
	db := newTestDB(t)
	reviewer := seedUser(t, db, "rev", models.RoleReviewer)
	app := seedApp(t, db, appSpec{
		name: "secret", status: models.StatusPending, publishType: models.PublishHidden,
	})

	svc := NewReviewService(db, nil)
	result, err := svc.PerformAction(app.WebappID, 0, ActionApprove, ActionPayload{}, reviewer)
	require.NoError(t, err)

	assert.Equal(t, models.StatusUnlisted, result.NewStatus)
	// Listing is hidden but the file itself is live.
	assert.Equal(t, []models.Status{models.StatusPublic}, fileStatuses(t, db, *app.LatestVersionID))
}

func TestApprovePrivateForcesFirstFilePublic(t *testing.T) {
	db := newTestDB(t)
	reviewer := seedUser(t, db, "rev", models.RoleReviewer)
	app := seedApp(t, db, appSpec{
		name: "vault", status: models.StatusPending, publishType: models.PublishPrivate,
	})

	svc := NewReviewService(db, nil)
	result, err := svc.PerformAction(app.WebappID, 0, ActionApprove, ActionPayload{}, reviewer)
	require.NoError(t, err)

	// Without any public file yet, the first approval makes the file public
	// so a current version can exist, while the app stays off the listing.
	assert.Equal(t, models.StatusApproved, result.NewStatus)
	assert.Equal(t, []models.Status{models.StatusPublic}, fileStatuses(t, db, *app.LatestVersionID))

	// A later version of the same app keeps the private treatment.
	v2 := addVersion(t, db, &app, false, models.StatusPending, time.Now())
	_, err = svc.PerformAction(app.WebappID, v2.VersionID, ActionApprove, ActionPayload{}, reviewer)
	require.NoError(t, err)
	assert.Equal(t, []models.Status{models.StatusApproved}, fileStatuses(t, db, v2.VersionID))
}

func TestApproveUpdateKeepsPublicStatusAndScoresUpdate(t *testing.T) {
	db := newTestDB(t)
	reviewer := seedUser(t, db, "rev", models.RoleReviewer)
	app := seedApp(t, db, appSpec{name: "pkg", status: models.StatusPending, packaged: true})

	svc := NewReviewService(db, nil)
	_, err := svc.PerformAction(app.WebappID, 0, ActionApprove, ActionPayload{}, reviewer)
	require.NoError(t, err)

	v2 := addVersion(t, db, &app, false, models.StatusPending, time.Now())
	result, err := svc.PerformAction(app.WebappID, v2.VersionID, ActionApprove, ActionPayload{}, reviewer)
	require.NoError(t, err)

	assert.Equal(t, models.StatusPublic, result.NewStatus)
	assert.Equal(t, 80, result.PointsAwarded)

	got := reloadApp(t, db, app.WebappID)
	require.NotNil(t, got.CurrentVersionID)
	assert.Equal(t, v2.VersionID, *got.CurrentVersionID)
}

func TestApproveAlreadyPublicHostedIsDenied(t *testing.T) {
	db := newTestDB(t)
	reviewer := seedUser(t, db, "rev", models.RoleReviewer)
	app := seedApp(t, db, appSpec{name: "live", status: models.StatusPublic})

	svc := NewReviewService(db, nil)
	_, err := svc.PerformAction(app.WebappID, 0, ActionApprove, ActionPayload{}, reviewer)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	// No score row appears for the refused action.
	var n int64
	require.NoError(t, db.Model(&models.ReviewerScore{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestApproveClearsEscalationAndPriority(t *testing.T) {
	db := newTestDB(t)
	reviewer := seedUser(t, db, "rev", models.RoleReviewer)
	app := seedApp(t, db, appSpec{name: "hot", status: models.StatusPending, priority: true})
	require.NoError(t, db.Create(&models.EscalationQueue{WebappID: app.WebappID}).Error)

	svc := NewReviewService(db, nil)
	_, err := svc.PerformAction(app.WebappID, 0, ActionApprove, ActionPayload{}, reviewer)
	require.NoError(t, err)

	var n int64
	require.NoError(t, db.Model(&models.EscalationQueue{}).Where("webapp_id = ?", app.WebappID).Count(&n).Error)
	assert.Zero(t, n)
	assert.False(t, reloadApp(t, db, app.WebappID).PriorityReview)
}

func TestApproveDeviceBonus(t *testing.T) {
	db := newTestDB(t)
	reviewer := seedUser(t, db, "rev", models.RoleReviewer)
	app := seedApp(t, db, appSpec{name: "multi", status: models.StatusPending, deviceCount: 3})

	svc := NewReviewService(db, nil)
	result, err := svc.PerformAction(app.WebappID, 0, ActionApprove, ActionPayload{}, reviewer)
	require.NoError(t, err)

	// 60 base plus 10 per device beyond the first.
	assert.Equal(t, 80, result.PointsAwarded)
}

func TestRejectHosted(t *testing.T) {
	db := newTestDB(t)
	reviewer := seedUser(t, db, "rev", models.RoleReviewer)
	app := seedApp(t, db, appSpec{name: "bad", status: models.StatusPending})

	svc := NewReviewService(db, nil)
	result, err := svc.PerformAction(app.WebappID, 0, ActionReject,
		ActionPayload{Comments: "broken manifest"}, reviewer)
	require.NoError(t, err)

	assert.Equal(t, models.StatusRejected, result.NewStatus)
	assert.Equal(t, []models.Status{models.StatusDisabled}, fileStatuses(t, db, *app.LatestVersionID))
	assert.Nil(t, reloadApp(t, db, app.WebappID).CurrentVersionID)
}

func TestRejectPackagedUpdateKeepsAppPublic(t *testing.T) {
	db := newTestDB(t)
	reviewer := seedUser(t, db, "rev", models.RoleReviewer)
	app := seedApp(t, db, appSpec{name: "pkg", status: models.StatusPending, packaged: true})

	svc := NewReviewService(db, nil)
	_, err := svc.PerformAction(app.WebappID, 0, ActionApprove, ActionPayload{}, reviewer)
	require.NoError(t, err)
	v1 := *app.LatestVersionID

	v2 := addVersion(t, db, &app, false, models.StatusPending, time.Now())
	result, err := svc.PerformAction(app.WebappID, v2.VersionID, ActionReject, ActionPayload{}, reviewer)
	require.NoError(t, err)

	// Only the new version dies. The app and its shipped version stay up.
	assert.Equal(t, models.StatusPublic, result.NewStatus)
	assert.Equal(t, []models.Status{models.StatusDisabled}, fileStatuses(t, db, v2.VersionID))

	got := reloadApp(t, db, app.WebappID)
	assert.Equal(t, models.StatusPublic, got.Status)
	require.NotNil(t, got.CurrentVersionID)
	assert.Equal(t, v1, *got.CurrentVersionID)
}

func TestDisableRequiresAdmin(t *testing.T) {
	db := newTestDB(t)
	reviewer := seedUser(t, db, "rev", models.RoleReviewer)
	senior := seedUser(t, db, "senior", models.RoleSeniorReviewer)
	app := seedApp(t, db, appSpec{name: "evil", status: models.StatusPublic})

	svc := NewReviewService(db, nil)
	for _, user := range []models.User{reviewer, senior} {
		_, err := svc.PerformAction(app.WebappID, 0, ActionDisable, ActionPayload{}, user)
		assert.ErrorIs(t, err, ErrPermissionDenied)
	}
	assert.Equal(t, models.StatusPublic, reloadApp(t, db, app.WebappID).Status)
}

func TestDisableBansAllVersions(t *testing.T) {
	db := newTestDB(t)
	admin := seedUser(t, db, "admin", models.RoleAdmin)
	app := seedApp(t, db, appSpec{name: "evil", status: models.StatusPublic})
	v1 := *app.LatestVersionID
	require.NoError(t, db.Model(&models.File{}).
		Where("version_id = ?", v1).Update("status", models.StatusPublic).Error)
	v2 := addVersion(t, db, &app, false, models.StatusPending, time.Now())

	svc := NewReviewService(db, nil)
	result, err := svc.PerformAction(app.WebappID, v2.VersionID, ActionDisable, ActionPayload{}, admin)
	require.NoError(t, err)

	assert.Equal(t, models.StatusDisabled, result.NewStatus)
	assert.Equal(t, []models.Status{models.StatusDisabled}, fileStatuses(t, db, v1))
	assert.Equal(t, []models.Status{models.StatusDisabled}, fileStatuses(t, db, v2.VersionID))
	assert.Zero(t, result.PointsAwarded)
}

func TestRequestInformation(t *testing.T) {
	db := newTestDB(t)
	reviewer := seedUser(t, db, "rev", models.RoleReviewer)
	app := seedApp(t, db, appSpec{name: "vague", status: models.StatusPending})

	svc := NewReviewService(db, nil)
	result, err := svc.PerformAction(app.WebappID, 0, ActionRequestInfo,
		ActionPayload{Comments: "please add screenshots"}, reviewer)
	require.NoError(t, err)

	// Status never moves on an information request.
	assert.Equal(t, models.StatusPending, result.NewStatus)

	var version models.Version
	require.NoError(t, db.First(&version, "version_id = ?", *app.LatestVersionID).Error)
	assert.True(t, version.HasInfoRequest)

	var note models.ReviewNote
	require.NoError(t, db.First(&note, "webapp_id = ?", app.WebappID).Error)
	assert.True(t, note.VisibleToDeveloper)

	require.Len(t, result.Events, 1)
	assert.Equal(t, EventNotify, result.Events[0].Kind)
	assert.False(t, result.Events[0].ExcludeAuthors)
}

func TestCommentStaysPrivate(t *testing.T) {
	db := newTestDB(t)
	reviewer := seedUser(t, db, "rev", models.RoleReviewer)
	app := seedApp(t, db, appSpec{name: "noted", status: models.StatusPending})

	svc := NewReviewService(db, nil)
	result, err := svc.PerformAction(app.WebappID, 0, ActionComment,
		ActionPayload{Comments: "smells like the cloned calculator"}, reviewer)
	require.NoError(t, err)

	assert.Empty(t, result.Events)

	var note models.ReviewNote
	require.NoError(t, db.First(&note, "webapp_id = ?", app.WebappID).Error)
	assert.False(t, note.VisibleToDeveloper)
}

func TestEscalateAndClearEscalation(t *testing.T) {
	db := newTestDB(t)
	reviewer := seedUser(t, db, "rev", models.RoleReviewer)
	app := seedApp(t, db, appSpec{name: "fishy", status: models.StatusPending})

	svc := NewReviewService(db, nil)
	result, err := svc.PerformAction(app.WebappID, 0, ActionEscalate, ActionPayload{}, reviewer)
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	assert.True(t, result.Events[0].ExcludeAuthors)

	var n int64
	require.NoError(t, db.Model(&models.EscalationQueue{}).Where("webapp_id = ?", app.WebappID).Count(&n).Error)
	assert.EqualValues(t, 1, n)

	// While escalated, escalate is replaced by clear_escalation.
	actions, err := svc.AvailableActions(app.WebappID, 0, reviewer)
	require.NoError(t, err)
	assert.True(t, actionIn(actions, ActionClearEscalation))
	assert.False(t, actionIn(actions, ActionEscalate))

	_, err = svc.PerformAction(app.WebappID, 0, ActionClearEscalation, ActionPayload{}, reviewer)
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.EscalationQueue{}).Where("webapp_id = ?", app.WebappID).Count(&n).Error)
	assert.Zero(t, n)
}

func TestClearEscalationTwiceIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	reviewer := seedUser(t, db, "rev", models.RoleReviewer)
	app := seedApp(t, db, appSpec{name: "calm", status: models.StatusPending})

	svc := NewReviewService(db, nil)
	_, err := svc.PerformAction(app.WebappID, 0, ActionEscalate, ActionPayload{}, reviewer)
	require.NoError(t, err)
	_, err = svc.PerformAction(app.WebappID, 0, ActionClearEscalation, ActionPayload{}, reviewer)
	require.NoError(t, err)

	var before int64
	require.NoError(t, db.Model(&models.ReviewNote{}).Count(&before).Error)

	// The second clear succeeds without writing anything.
	result, err := svc.PerformAction(app.WebappID, 0, ActionClearEscalation, ActionPayload{}, reviewer)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, result.NewStatus)
	assert.Zero(t, result.PointsAwarded)

	var after int64
	require.NoError(t, db.Model(&models.ReviewNote{}).Count(&after).Error)
	assert.Equal(t, before, after)
}

func TestClearRereviewAwardsPoints(t *testing.T) {
	db := newTestDB(t)
	reviewer := seedUser(t, db, "rev", models.RoleReviewer)
	app := seedApp(t, db, appSpec{name: "flagged", status: models.StatusPublic})
	require.NoError(t, db.Create(&models.RereviewQueue{WebappID: app.WebappID}).Error)

	svc := NewReviewService(db, nil)
	result, err := svc.PerformAction(app.WebappID, 0, ActionClearRereview, ActionPayload{}, reviewer)
	require.NoError(t, err)

	// Deciding a re-review flag was unwarranted pays re-review points.
	assert.Equal(t, 30, result.PointsAwarded)

	var n int64
	require.NoError(t, db.Model(&models.RereviewQueue{}).Where("webapp_id = ?", app.WebappID).Count(&n).Error)
	assert.Zero(t, n)
}

func TestPrivilegedVersionNeedsSeniorReviewer(t *testing.T) {
	db := newTestDB(t)
	reviewer := seedUser(t, db, "rev", models.RoleReviewer)
	senior := seedUser(t, db, "senior", models.RoleSeniorReviewer)
	app := seedApp(t, db, appSpec{
		name: "priv", status: models.StatusPending, packaged: true, privileged: true,
	})

	svc := NewReviewService(db, nil)

	actions, err := svc.AvailableActions(app.WebappID, 0, reviewer)
	require.NoError(t, err)
	assert.False(t, actionIn(actions, ActionApprove))
	assert.False(t, actionIn(actions, ActionReject))
	assert.True(t, actionIn(actions, ActionEscalate))

	actions, err = svc.AvailableActions(app.WebappID, 0, senior)
	require.NoError(t, err)
	assert.True(t, actionIn(actions, ActionApprove))
	assert.True(t, actionIn(actions, ActionReject))

	result, err := svc.PerformAction(app.WebappID, 0, ActionApprove, ActionPayload{}, senior)
	require.NoError(t, err)
	assert.Equal(t, 150, result.PointsAwarded)
}

func TestPerformActionErrors(t *testing.T) {
	db := newTestDB(t)
	reviewer := seedUser(t, db, "rev", models.RoleReviewer)
	app := seedApp(t, db, appSpec{name: "ok", status: models.StatusPending})

	svc := NewReviewService(db, nil)

	_, err := svc.PerformAction(app.WebappID, 0, "frobnicate", ActionPayload{}, reviewer)
	assert.ErrorIs(t, err, ErrInvalidAction)

	// A webapp with no version at all has nothing to review.
	bare := models.Webapp{Name: "empty", Slug: "empty", Status: models.StatusIncomplete}
	require.NoError(t, db.Create(&bare).Error)
	_, err = svc.PerformAction(bare.WebappID, 0, ActionApprove, ActionPayload{}, reviewer)
	assert.ErrorIs(t, err, ErrIncompleteSubmission)
}

func TestSigningFailureRollsBack(t *testing.T) {
	db := newTestDB(t)
	reviewer := seedUser(t, db, "rev", models.RoleReviewer)
	app := seedApp(t, db, appSpec{name: "pkg", status: models.StatusPending, packaged: true})

	svc := NewReviewService(db, failSigner{})
	_, err := svc.PerformAction(app.WebappID, 0, ActionApprove, ActionPayload{}, reviewer)
	assert.ErrorIs(t, err, ErrSigningFailure)

	// Nothing committed: status, files and ledger are untouched.
	assert.Equal(t, models.StatusPending, reloadApp(t, db, app.WebappID).Status)
	assert.Equal(t, []models.Status{models.StatusPending}, fileStatuses(t, db, *app.LatestVersionID))

	var n int64
	require.NoError(t, db.Model(&models.ReviewerScore{}).Count(&n).Error)
	assert.Zero(t, n)
}
