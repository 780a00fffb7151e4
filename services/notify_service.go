package services

import (
	"fmt"
	"log"
	"os"

	"marketplace-review-api/config"
	"marketplace-review-api/models"

	"gorm.io/gorm"
)

// Notifier delivers review outcome notifications. Controllers drain events
// into it after the decision transaction commits.
type Notifier interface {
	Notify(event Event) error
}

// LogNotifier just records events. Used in tests and when SMTP is not
// configured.
type LogNotifier struct{}

func (LogNotifier) Notify(event Event) error {
	log.Printf("Notify: %s for webapp %d", event.Action, event.WebappID)
	return nil
}

// MailNotifier emails the developer and everyone who has commented on the
// review thread. Escalations and internal actions exclude the developer.
type MailNotifier struct {
	db      *gorm.DB
	contact string
}

func NewMailNotifier(db *gorm.DB) *MailNotifier {
	if db == nil {
		db = config.DB
	}
	return &MailNotifier{db: db, contact: os.Getenv("MARKETPLACE_CONTACT")}
}

func (n *MailNotifier) Notify(event Event) error {
	var webapp models.Webapp
	if err := n.db.Preload("Author").First(&webapp, "webapp_id = ?", event.WebappID).Error; err != nil {
		return fmt.Errorf("load webapp %d: %w", event.WebappID, err)
	}

	recipients, err := n.recipients(webapp, event)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		return nil
	}

	subject := fmt.Sprintf("Review update for %s", webapp.Name)
	body := fmt.Sprintf(
		"<p>The submission <strong>%s</strong> received a reviewer action: %s.</p><p>%s</p>",
		webapp.Name, event.Action, event.Comments,
	)
	return config.SendMail(recipients, subject, body)
}

// recipients is the developer (unless excluded), the configured marketplace
// contact, and every distinct author on the review thread.
func (n *MailNotifier) recipients(webapp models.Webapp, event Event) ([]string, error) {
	seen := map[string]bool{}
	var to []string
	add := func(email string) {
		if email == "" || seen[email] {
			return
		}
		seen[email] = true
		to = append(to, email)
	}

	if !event.ExcludeAuthors && webapp.Author != nil {
		add(webapp.Author.Email)
	}
	add(n.contact)

	var participants []models.User
	err := n.db.
		Joins("JOIN review_notes ON review_notes.author_id = users.user_id").
		Where("review_notes.webapp_id = ?", webapp.WebappID).
		Distinct("users.*").
		Find(&participants).Error
	if err != nil {
		return nil, fmt.Errorf("load thread participants: %w", err)
	}
	for _, participant := range participants {
		if event.ExcludeAuthors && participant.UserID == webapp.AuthorID {
			continue
		}
		add(participant.Email)
	}
	return to, nil
}
