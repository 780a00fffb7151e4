package models

// Status is the moderation state of a webapp or one of its files. File status
// is tracked independently of the webapp so a packaged app can keep an
// approved version public while a newer version is still in review.
type Status int

const (
	StatusIncomplete Status = 0
	StatusPending    Status = 2
	StatusPublic     Status = 4
	StatusDisabled   Status = 5 // banned by a reviewer
	StatusDeleted    Status = 11
	StatusRejected   Status = 12
	StatusApproved   Status = 13 // approved but not listed publicly
	StatusBlocked    Status = 15
	StatusUnlisted   Status = 16
)

var statusNames = map[Status]string{
	StatusIncomplete: "incomplete",
	StatusPending:    "pending",
	StatusPublic:     "public",
	StatusDisabled:   "disabled",
	StatusDeleted:    "deleted",
	StatusRejected:   "rejected",
	StatusApproved:   "approved",
	StatusBlocked:    "blocked",
	StatusUnlisted:   "unlisted",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// ApprovedStatuses are the statuses a webapp can hold once a reviewer has
// approved it, whatever its listing visibility.
var ApprovedStatuses = []Status{StatusPublic, StatusUnlisted, StatusApproved}

// ReviewedFileStatuses are the file statuses that count as "this version has
// been reviewed and accepted".
var ReviewedFileStatuses = []Status{StatusPublic, StatusApproved}

// IsApproved reports whether the status is one of the approved-class statuses.
func (s Status) IsApproved() bool {
	for _, st := range ApprovedStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// PublishType controls where an approved webapp ends up.
type PublishType int

const (
	PublishImmediate PublishType = 0 // straight to public listing
	PublishHidden    PublishType = 1 // approved but unlisted
	PublishPrivate   PublishType = 2 // approved, only visible to the author
)

// NoteKey identifies the review event a score row was awarded for.
type NoteKey int

const (
	ReviewedManual              NoteKey = 0
	ReviewedWebappHosted        NoteKey = 70
	ReviewedWebappPackaged      NoteKey = 71
	ReviewedWebappRereview      NoteKey = 72
	ReviewedWebappUpdate        NoteKey = 73
	ReviewedWebappPrivileged    NoteKey = 74
	ReviewedWebappPrivilegedUpd NoteKey = 75
	ReviewedWebappPlatformExtra NoteKey = 78
)

// ReviewedScores maps an event to the points it pays. Privileged reviews pay
// strictly more than their plain counterparts.
var ReviewedScores = map[NoteKey]int{
	ReviewedManual:              0,
	ReviewedWebappHosted:        60,
	ReviewedWebappPackaged:      120,
	ReviewedWebappRereview:      30,
	ReviewedWebappUpdate:        80,
	ReviewedWebappPrivileged:    150,
	ReviewedWebappPrivilegedUpd: 100,
	ReviewedWebappPlatformExtra: 10,
}

var noteKeyNames = map[NoteKey]string{
	ReviewedManual:              "Manual Reviewer Points",
	ReviewedWebappHosted:        "Hosted App Review",
	ReviewedWebappPackaged:      "Packaged App Review",
	ReviewedWebappRereview:      "App Re-review",
	ReviewedWebappUpdate:        "Updated Packaged App Review",
	ReviewedWebappPrivileged:    "Privileged App Review",
	ReviewedWebappPrivilegedUpd: "Updated Privileged App Review",
	ReviewedWebappPlatformExtra: "Extra Platform Bonus",
}

func (k NoteKey) String() string {
	if name, ok := noteKeyNames[k]; ok {
		return name
	}
	return "unknown"
}

// ReviewerLevel is a lifetime-points milestone shown next to leaderboard rows.
type ReviewerLevel struct {
	Name   string
	Points int
}

var ReviewerLevels = []ReviewerLevel{
	{"Level 1", 2160},
	{"Level 2", 4320},
	{"Level 3", 8700},
	{"Level 4", 21000},
	{"Level 5", 45000},
	{"Level 6", 96000},
}

// LevelFor returns the highest level name the given lifetime total has
// reached, or "" below the first level.
func LevelFor(total int) string {
	name := ""
	for _, level := range ReviewerLevels {
		if total < level.Points {
			break
		}
		name = level.Name
	}
	return name
}
