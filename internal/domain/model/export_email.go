package model

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// ErrNoEmailsAvailable is returned when no notification is ready to send.
var ErrNoEmailsAvailable = errors.New("no export emails available")

// ErrInvalidEmail is returned when a requester address fails validation.
var ErrInvalidEmail = errors.New("doesn't look like an email address")

var emailPattern = regexp.MustCompile(`^.+@.+\..+$`)

// ValidateEmail trims the address and checks its basic shape.
func ValidateEmail(raw string) (string, error) {
	addr := strings.TrimSpace(raw)
	if !emailPattern.MatchString(addr) {
		return "", ErrInvalidEmail
	}
	return addr, nil
}

// ExportEmail is a pending or sent "your download is ready" notification.
type ExportEmail struct {
	ID             int64      `json:"id"                     db:"id"`
	ExportID       string     `json:"export_id"              db:"export_id"`
	RequesterEmail string     `json:"requester_email"        db:"requester_email"`
	RequestedAt    time.Time  `json:"requested_at"           db:"requested_at"`
	SendStarted    *time.Time `json:"send_started,omitempty" db:"send_started"`
	SentAt         *time.Time `json:"sent_at,omitempty"      db:"sent_at"`
}

// ClaimedEmail is a claimed notification joined with the export it announces.
type ClaimedEmail struct {
	Email     ExportEmail
	QueryURL  string
	ResultURL string
}
