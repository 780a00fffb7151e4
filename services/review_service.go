package services

import (
	"fmt"
	"log"
	"time"

	"marketplace-review-api/config"
	"marketplace-review-api/models"

	"gorm.io/gorm"
)

// ActionName identifies one reviewer action. The set is closed: anything else
// is rejected as invalid input before any state is touched.
type ActionName string

const (
	ActionApprove         ActionName = "approve"
	ActionReject          ActionName = "reject"
	ActionDisable         ActionName = "disable"
	ActionRequestInfo     ActionName = "request_information"
	ActionEscalate        ActionName = "escalate"
	ActionComment         ActionName = "comment"
	ActionManualRereview  ActionName = "manual_rereview"
	ActionClearEscalation ActionName = "clear_escalation"
	ActionClearRereview   ActionName = "clear_rereview"
)

// ActionDescriptor is what the review UI renders for one available action.
// Minimal actions do not require a comment body.
type ActionDescriptor struct {
	Name    ActionName `json:"name"`
	Label   string     `json:"label"`
	Details string     `json:"details"`
	Minimal bool       `json:"minimal"`
}

var actionCatalog = map[ActionName]ActionDescriptor{
	ActionApprove: {ActionApprove, "Approve",
		"Approve the app and allow the author(s) to publish it.", false},
	ActionReject: {ActionReject, "Reject",
		"Reject the app, remove it from the review queue and un-publish it if already published.", false},
	ActionDisable: {ActionDisable, "Ban app",
		"Ban the app from the marketplace. Similar to Reject but the author(s) can't resubmit.", true},
	ActionRequestInfo: {ActionRequestInfo, "Message developer",
		"Send the author(s) and thread subscribers a message. Does not change the app's status.", true},
	ActionEscalate: {ActionEscalate, "Escalate",
		"Flag this app for an admin to review. Comments go to the admins, not the author(s).", true},
	ActionComment: {ActionComment, "Private comment",
		"Make a private reviewer comment on this app. Not visible to the author(s).", true},
	ActionManualRereview: {ActionManualRereview, "Request re-review",
		"Add this app to the re-review queue. Comments are not visible to the author(s).", true},
	ActionClearEscalation: {ActionClearEscalation, "Clear escalation",
		"Clear this app from the escalation queue. The author(s) are not notified.", true},
	ActionClearRereview: {ActionClearRereview, "Clear re-review",
		"Clear this app from the re-review queue. The author(s) are not notified.", true},
}

// EventKind names a deferred side effect to dispatch after commit.
type EventKind string

const (
	EventReindex    EventKind = "reindex"
	EventNotify     EventKind = "notify"
	EventStorefront EventKind = "storefront"
)

// Event is a post-commit side effect. PerformAction never dispatches these
// itself: the caller drains them once the transaction has committed, so a
// rollback can never leave a notification or index entry behind.
type Event struct {
	Kind           EventKind  `json:"kind"`
	WebappID       uint       `json:"webapp_id"`
	VersionID      uint       `json:"version_id"`
	Action         ActionName `json:"action"`
	Comments       string     `json:"comments"`
	ExcludeAuthors bool       `json:"exclude_authors"`
	Disable        bool       `json:"disable"`
}

// ActionPayload carries the reviewer-entered data for an action.
type ActionPayload struct {
	Comments string `json:"comments"`
}

// ActionResult reports what one committed action did.
type ActionResult struct {
	NewStatus     models.Status `json:"new_status"`
	PointsAwarded int           `json:"points_awarded"`
	Events        []Event       `json:"-"`
}

// ReviewService computes available actions and performs atomic review state
// transitions across the webapp, its versions, files and queue memberships.
type ReviewService struct {
	db     *gorm.DB
	signer Signer
	scores *ScoreService
}

func NewReviewService(db *gorm.DB, signer Signer) *ReviewService {
	if db == nil {
		db = config.DB
	}
	if signer == nil {
		signer = NoopSigner{}
	}
	return &ReviewService{db: db, signer: signer, scores: NewScoreService(db)}
}

// reviewState is the loaded snapshot of one webapp+version pair that the
// eligibility predicates and handlers run against.
type reviewState struct {
	webapp        models.Webapp
	version       *models.Version
	files         []models.File
	inEscalation  bool
	inRereview    bool
	otherReviewed bool // some other version holds a reviewed file
}

func (s *ReviewService) loadState(webappID, versionID uint) (*reviewState, error) {
	st := &reviewState{}
	if err := s.db.First(&st.webapp, "webapp_id = ?", webappID).Error; err != nil {
		return nil, err
	}

	if versionID == 0 && st.webapp.LatestVersionID != nil {
		versionID = *st.webapp.LatestVersionID
	}
	if versionID != 0 {
		var version models.Version
		err := s.db.First(&version, "version_id = ? AND webapp_id = ?", versionID, webappID).Error
		if err != nil && err != gorm.ErrRecordNotFound {
			return nil, err
		}
		if err == nil {
			st.version = &version
			if err := s.db.Where("version_id = ?", version.VersionID).Find(&st.files).Error; err != nil {
				return nil, err
			}
		}
	}

	var n int64
	if err := s.db.Model(&models.EscalationQueue{}).
		Where("webapp_id = ?", webappID).Count(&n).Error; err != nil {
		return nil, err
	}
	st.inEscalation = n > 0

	if err := s.db.Model(&models.RereviewQueue{}).
		Where("webapp_id = ?", webappID).Count(&n).Error; err != nil {
		return nil, err
	}
	st.inRereview = n > 0

	if st.version != nil {
		err := s.db.Model(&models.File{}).
			Joins("JOIN versions ON versions.version_id = files.version_id").
			Where("versions.webapp_id = ? AND versions.version_id <> ?", webappID, st.version.VersionID).
			Where("files.status IN ?", models.ReviewedFileStatuses).
			Count(&n).Error
		if err != nil {
			return nil, err
		}
		st.otherReviewed = n > 0
	}
	return st, nil
}

func hasFileStatus(files []models.File, status models.Status) bool {
	for _, f := range files {
		if f.Status == status {
			return true
		}
	}
	return false
}

// availableActions computes the ordered action set for the loaded state and
// reviewer. Actions a reviewer may never take (privileged approvals by a
// regular reviewer, bans by a non-admin) are omitted entirely, not disabled.
func availableActions(st *reviewState, reviewer models.User) []ActionDescriptor {
	var actions []ActionDescriptor
	if st.version == nil {
		// Incomplete submission: nothing to act on.
		return actions
	}

	add := func(name ActionName) {
		actions = append(actions, actionCatalog[name])
	}

	webapp := &st.webapp
	showPrivileged := !st.version.IsPrivileged || reviewer.CanReviewPrivileged()
	terminal := webapp.Status == models.StatusRejected || webapp.Status == models.StatusDisabled

	// Approve.
	if webapp.IsPackaged {
		if !hasFileStatus(st.files, models.StatusPublic) && showPrivileged {
			add(ActionApprove)
		}
	} else if webapp.Status != models.StatusPublic {
		add(ActionApprove)
	}

	// Reject. Packaged apps reject the file only, or the app itself when no
	// other version is already reviewed.
	if webapp.IsPackaged {
		if showPrivileged {
			if !st.otherReviewed && !terminal {
				add(ActionReject)
			} else if st.otherReviewed && !hasFileStatus(st.files, models.StatusDisabled) {
				add(ActionReject)
			}
		}
	} else if !terminal {
		add(ActionReject)
	}

	// Ban.
	if reviewer.CanEditApps() &&
		(webapp.Status != models.StatusDisabled || !hasFileStatus(st.files, models.StatusDisabled)) {
		add(ActionDisable)
	}

	if st.inRereview {
		add(ActionClearRereview)
	} else {
		add(ActionManualRereview)
	}
	if st.inEscalation {
		add(ActionClearEscalation)
	} else {
		add(ActionEscalate)
	}

	add(ActionRequestInfo)
	add(ActionComment)
	return actions
}

// AvailableActions returns the actions the reviewer may take right now on the
// given webapp+version. versionID 0 means the latest version.
func (s *ReviewService) AvailableActions(webappID, versionID uint, reviewer models.User) ([]ActionDescriptor, error) {
	st, err := s.loadState(webappID, versionID)
	if err != nil {
		return nil, err
	}
	return availableActions(st, reviewer), nil
}

// PerformAction executes exactly one review action as a single transaction
// spanning the webapp, version, files, queue rows, note and score ledger.
// Side effects that cannot be rolled back are returned as post-commit Events.
func (s *ReviewService) PerformAction(webappID, versionID uint, action ActionName,
	payload ActionPayload, reviewer models.User) (*ActionResult, error) {

	if _, ok := actionCatalog[action]; !ok {
		return nil, ErrInvalidAction
	}

	st, err := s.loadState(webappID, versionID)
	if err != nil {
		return nil, err
	}
	if st.version == nil {
		return nil, ErrIncompleteSubmission
	}

	if !actionIn(availableActions(st, reviewer), action) {
		// Clearing an already-clear queue is an idempotent no-op, not a
		// conflict: no note, no points, no duplicate state change.
		if (action == ActionClearEscalation && !st.inEscalation) ||
			(action == ActionClearRereview && !st.inRereview) {
			return &ActionResult{NewStatus: st.webapp.Status}, nil
		}
		return nil, ErrPermissionDenied
	}

	result := &ActionResult{}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		rc := &reviewContext{
			tx:       tx,
			state:    st,
			reviewer: reviewer,
			payload:  payload,
			signer:   s.signer,
			scores:   s.scores,
		}
		var err error
		switch action {
		case ActionApprove:
			err = rc.approve()
		case ActionReject:
			err = rc.reject()
		case ActionDisable:
			err = rc.disable()
		case ActionRequestInfo:
			err = rc.requestInformation()
		case ActionEscalate:
			err = rc.escalate()
		case ActionComment:
			err = rc.comment()
		case ActionManualRereview:
			err = rc.manualRereview()
		case ActionClearEscalation:
			err = rc.clearEscalationAction()
		case ActionClearRereview:
			err = rc.clearRereviewAction()
		}
		if err != nil {
			return err
		}
		result.NewStatus = rc.state.webapp.Status
		result.PointsAwarded = rc.points
		result.Events = rc.events
		return nil
	})
	if err != nil {
		return nil, err
	}

	// New ledger rows make every cached total and leaderboard stale.
	if result.PointsAwarded > 0 {
		s.scores.Invalidate()
	}
	return result, nil
}

func actionIn(actions []ActionDescriptor, name ActionName) bool {
	for _, a := range actions {
		if a.Name == name {
			return true
		}
	}
	return false
}

// reviewContext executes one action's writes inside a transaction, mirroring
// the state snapshot as it goes so the result reports the new status.
type reviewContext struct {
	tx       *gorm.DB
	state    *reviewState
	reviewer models.User
	payload  ActionPayload
	signer   Signer
	scores   *ScoreService

	points int
	events []Event
}

func (rc *reviewContext) setWebapp(fields map[string]interface{}) error {
	err := rc.tx.Model(&models.Webapp{}).
		Where("webapp_id = ?", rc.state.webapp.WebappID).
		Updates(fields).Error
	if err != nil {
		return err
	}
	if status, ok := fields["status"]; ok {
		rc.state.webapp.Status = status.(models.Status)
	}
	return nil
}

// setFiles moves the version's files to the new status and stamps the review
// timestamps.
func (rc *reviewContext) setFiles(status models.Status) error {
	now := time.Now()
	err := rc.tx.Model(&models.File{}).
		Where("version_id = ?", rc.state.version.VersionID).
		Updates(map[string]interface{}{
			"status":              status,
			"reviewed":            now,
			"date_status_changed": now,
		}).Error
	if err != nil {
		return err
	}
	for i := range rc.state.files {
		rc.state.files[i].Status = status
	}
	return nil
}

func (rc *reviewContext) setReviewed() error {
	now := time.Now()
	err := rc.tx.Model(&models.Version{}).
		Where("version_id = ?", rc.state.version.VersionID).
		Update("reviewed", now).Error
	if err == nil {
		rc.state.version.Reviewed = &now
	}
	return err
}

// refreshCurrentVersion repoints current_version_id at the newest version
// holding a reviewed file, or clears it when none is left. A webapp cannot
// hold a current version without at least one public or approved file.
func (rc *reviewContext) refreshCurrentVersion() error {
	var version models.Version
	err := rc.tx.Model(&models.Version{}).
		Joins("JOIN files ON files.version_id = versions.version_id").
		Where("versions.webapp_id = ?", rc.state.webapp.WebappID).
		Where("files.status IN ?", models.ReviewedFileStatuses).
		Order("versions.created_at DESC").
		Order("versions.version_id DESC").
		First(&version).Error
	if err == gorm.ErrRecordNotFound {
		return rc.tx.Model(&models.Webapp{}).
			Where("webapp_id = ?", rc.state.webapp.WebappID).
			Update("current_version_id", nil).Error
	}
	if err != nil {
		return err
	}
	return rc.tx.Model(&models.Webapp{}).
		Where("webapp_id = ?", rc.state.webapp.WebappID).
		Update("current_version_id", version.VersionID).Error
}

func (rc *reviewContext) createNote(action ActionName, visibleToDeveloper bool) error {
	versionID := rc.state.version.VersionID
	authorID := rc.reviewer.UserID
	note := models.ReviewNote{
		WebappID:           rc.state.webapp.WebappID,
		VersionID:          &versionID,
		AuthorID:           &authorID,
		Action:             string(action),
		Body:               rc.payload.Comments,
		VisibleToDeveloper: visibleToDeveloper,
	}
	return rc.tx.Create(&note).Error
}

func (rc *reviewContext) clearEscalation() error {
	err := rc.tx.Where("webapp_id = ?", rc.state.webapp.WebappID).
		Delete(&models.EscalationQueue{}).Error
	if err == nil {
		rc.state.inEscalation = false
	}
	return err
}

func (rc *reviewContext) clearRereview() error {
	err := rc.tx.Where("webapp_id = ?", rc.state.webapp.WebappID).
		Delete(&models.RereviewQueue{}).Error
	if err == nil {
		rc.state.inRereview = false
	}
	return err
}

func (rc *reviewContext) addEvent(kind EventKind, action ActionName, excludeAuthors, disable bool) {
	rc.events = append(rc.events, Event{
		Kind:           kind,
		WebappID:       rc.state.webapp.WebappID,
		VersionID:      rc.state.version.VersionID,
		Action:         action,
		Comments:       rc.payload.Comments,
		ExcludeAuthors: excludeAuthors,
		Disable:        disable,
	})
}

func (rc *reviewContext) signIfPackaged() error {
	if !rc.state.webapp.IsPackaged {
		return nil
	}
	if _, err := rc.signer.Sign(rc.state.version.VersionID); err != nil {
		return fmt.Errorf("%w: %v", ErrSigningFailure, err)
	}
	return nil
}

// approve publishes the version's files according to the webapp's publish
// type, never regressing an already approved webapp status.
func (rc *reviewContext) approve() error {
	if rc.state.webapp.IsIncomplete() {
		return ErrIncompleteSubmission
	}
	prev := rc.state.webapp.Status

	var err error
	switch rc.state.webapp.PublishType {
	case models.PublishImmediate:
		err = rc.processPublic(models.StatusPublic)
	case models.PublishHidden:
		err = rc.processPublic(models.StatusUnlisted)
	default:
		err = rc.processPrivate()
	}
	if err != nil {
		return err
	}

	if rc.state.inEscalation {
		if err := rc.clearEscalation(); err != nil {
			return err
		}
	}
	// Priority review is not persistent: it is spent by the approval.
	if rc.state.webapp.PriorityReview {
		if err := rc.setWebapp(map[string]interface{}{"priority_review": false}); err != nil {
			return err
		}
	}

	points, err := rc.scores.AwardPoints(rc.tx, rc.reviewer, &rc.state.webapp, prev,
		rc.state.version, false)
	if err != nil {
		return err
	}
	rc.points = points

	rc.addEvent(EventReindex, ActionApprove, false, false)
	rc.addEvent(EventNotify, ActionApprove, false, false)
	rc.addEvent(EventStorefront, ActionApprove, false, false)
	return nil
}

func (rc *reviewContext) processPublic(target models.Status) error {
	if err := rc.signIfPackaged(); err != nil {
		return err
	}
	if err := rc.setFiles(models.StatusPublic); err != nil {
		return err
	}
	// An already approved webapp keeps its status when a later version is
	// approved; only the file and version pointers move.
	if !rc.state.webapp.Status.IsApproved() {
		if err := rc.setWebapp(map[string]interface{}{"status": target}); err != nil {
			return err
		}
	}
	if err := rc.setReviewed(); err != nil {
		return err
	}
	if err := rc.refreshCurrentVersion(); err != nil {
		return err
	}
	log.Printf("making webapp %d public-track (%s)", rc.state.webapp.WebappID, target)
	return rc.createNote(ActionApprove, true)
}

func (rc *reviewContext) processPrivate() error {
	if err := rc.signIfPackaged(); err != nil {
		return err
	}

	// Until a first public file exists the approved file is forced public:
	// at least one public file must exist to establish a current version.
	var publicFiles int64
	err := rc.tx.Model(&models.File{}).
		Joins("JOIN versions ON versions.version_id = files.version_id").
		Where("versions.webapp_id = ? AND files.status = ?",
			rc.state.webapp.WebappID, models.StatusPublic).
		Count(&publicFiles).Error
	if err != nil {
		return err
	}
	fileStatus := models.StatusApproved
	if publicFiles == 0 {
		fileStatus = models.StatusPublic
	}
	if err := rc.setFiles(fileStatus); err != nil {
		return err
	}

	if rc.state.webapp.Status != models.StatusPublic &&
		rc.state.webapp.Status != models.StatusUnlisted {
		if err := rc.setWebapp(map[string]interface{}{"status": models.StatusApproved}); err != nil {
			return err
		}
	}
	if err := rc.setReviewed(); err != nil {
		return err
	}
	if err := rc.refreshCurrentVersion(); err != nil {
		return err
	}
	log.Printf("making webapp %d approved-private", rc.state.webapp.WebappID)
	return rc.createNote(ActionApprove, true)
}

// reject disables the version's files; the webapp as a whole is only
// rejected when no other version keeps a reviewed file.
func (rc *reviewContext) reject() error {
	prev := rc.state.webapp.Status
	wasInRereview := rc.state.inRereview

	if err := rc.setFiles(models.StatusDisabled); err != nil {
		return err
	}
	if !rc.state.webapp.IsPackaged || !rc.state.otherReviewed {
		if err := rc.setWebapp(map[string]interface{}{"status": models.StatusRejected}); err != nil {
			return err
		}
	}
	if rc.state.inEscalation {
		if err := rc.clearEscalation(); err != nil {
			return err
		}
	}
	if rc.state.inRereview {
		if err := rc.clearRereview(); err != nil {
			return err
		}
	}
	if err := rc.refreshCurrentVersion(); err != nil {
		return err
	}
	if err := rc.createNote(ActionReject, true); err != nil {
		return err
	}

	points, err := rc.scores.AwardPoints(rc.tx, rc.reviewer, &rc.state.webapp, prev,
		rc.state.version, wasInRereview)
	if err != nil {
		return err
	}
	rc.points = points

	rc.addEvent(EventReindex, ActionReject, false, false)
	rc.addEvent(EventNotify, ActionReject, false, false)
	return nil
}

// disable bans the app: every file of every version is disabled, whatever
// its current state.
func (rc *reviewContext) disable() error {
	if !rc.reviewer.CanEditApps() {
		return ErrPermissionDenied
	}
	now := time.Now()
	err := rc.tx.Model(&models.File{}).
		Where("version_id IN (?)", rc.tx.Model(&models.Version{}).
			Select("version_id").Where("webapp_id = ?", rc.state.webapp.WebappID)).
		Updates(map[string]interface{}{
			"status":              models.StatusDisabled,
			"date_status_changed": now,
		}).Error
	if err != nil {
		return err
	}
	for i := range rc.state.files {
		rc.state.files[i].Status = models.StatusDisabled
	}
	if err := rc.setWebapp(map[string]interface{}{"status": models.StatusDisabled}); err != nil {
		return err
	}
	if err := rc.clearEscalation(); err != nil {
		return err
	}
	if err := rc.clearRereview(); err != nil {
		return err
	}
	if err := rc.refreshCurrentVersion(); err != nil {
		return err
	}
	if err := rc.createNote(ActionDisable, true); err != nil {
		return err
	}
	log.Printf("webapp %d banned by reviewer %d", rc.state.webapp.WebappID, rc.reviewer.UserID)

	rc.addEvent(EventReindex, ActionDisable, false, true)
	rc.addEvent(EventNotify, ActionDisable, false, true)
	rc.addEvent(EventStorefront, ActionDisable, false, true)
	return nil
}

func (rc *reviewContext) requestInformation() error {
	err := rc.tx.Model(&models.Version{}).
		Where("version_id = ?", rc.state.version.VersionID).
		Update("has_info_request", true).Error
	if err != nil {
		return err
	}
	rc.state.version.HasInfoRequest = true
	if err := rc.createNote(ActionRequestInfo, true); err != nil {
		return err
	}
	rc.addEvent(EventNotify, ActionRequestInfo, false, false)
	return nil
}

func (rc *reviewContext) escalate() error {
	row := models.EscalationQueue{WebappID: rc.state.webapp.WebappID}
	err := rc.tx.Where("webapp_id = ?", rc.state.webapp.WebappID).
		FirstOrCreate(&row).Error
	if err != nil {
		return err
	}
	rc.state.inEscalation = true
	if err := rc.createNote(ActionEscalate, false); err != nil {
		return err
	}
	rc.addEvent(EventNotify, ActionEscalate, true, false)
	return nil
}

func (rc *reviewContext) comment() error {
	err := rc.tx.Model(&models.Version{}).
		Where("version_id = ?", rc.state.version.VersionID).
		Update("has_editor_comment", true).Error
	if err != nil {
		return err
	}
	rc.state.version.HasEditorComment = true
	return rc.createNote(ActionComment, false)
}

func (rc *reviewContext) manualRereview() error {
	row := models.RereviewQueue{WebappID: rc.state.webapp.WebappID}
	err := rc.tx.Where("webapp_id = ?", rc.state.webapp.WebappID).
		FirstOrCreate(&row).Error
	if err != nil {
		return err
	}
	rc.state.inRereview = true
	return rc.createNote(ActionManualRereview, false)
}

func (rc *reviewContext) clearEscalationAction() error {
	if err := rc.clearEscalation(); err != nil {
		return err
	}
	if err := rc.createNote(ActionClearEscalation, false); err != nil {
		return err
	}
	rc.addEvent(EventNotify, ActionClearEscalation, true, false)
	return nil
}

// clearRereviewAction removes the re-review flag and pays out as if a review
// had completed, since deciding the flag was unwarranted is itself a review.
func (rc *reviewContext) clearRereviewAction() error {
	if err := rc.clearRereview(); err != nil {
		return err
	}
	if err := rc.createNote(ActionClearRereview, false); err != nil {
		return err
	}
	points, err := rc.scores.AwardPoints(rc.tx, rc.reviewer, &rc.state.webapp,
		rc.state.webapp.Status, rc.state.version, true)
	if err != nil {
		return err
	}
	rc.points = points
	rc.addEvent(EventNotify, ActionClearRereview, true, false)
	return nil
}
