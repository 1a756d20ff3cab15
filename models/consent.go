package models

import (
	"time"

	"gorm.io/datatypes"
)

// State is the lifecycle state of a consent request.
type State string

const (
	StateCreated  State = "CREATED"
	StateOpened   State = "OPENED"
	StateAccepted State = "ACCEPTED"
	StateExpired  State = "EXPIRED"
)

// ConsentRequest is the token-addressed unit of work tracked by the
// lifecycle engine. One row per request; token is the only external
// lookup key.
type ConsentRequest struct {
	ID            uint           `json:"-" gorm:"primaryKey"`
	RequestID     string         `json:"request_id" gorm:"size:36;uniqueIndex;not null"`
	SubjectID     string         `json:"subject_id" gorm:"size:128;not null;index"`
	Channel       string         `json:"channel" gorm:"size:32;not null"`
	Token         string         `json:"-" gorm:"size:64;uniqueIndex;not null"`
	TokenDigest   string         `json:"-" gorm:"size:64;not null"`
	NotifyTarget  string         `json:"-" gorm:"size:2048;not null"`
	Metadata      datatypes.JSON `json:"metadata,omitempty" gorm:"type:jsonb"`
	State         State          `json:"state" gorm:"type:varchar(16);not null;index"`
	CreatedAt     time.Time      `json:"created_at"`
	ExpiresAt     time.Time      `json:"expires_at" gorm:"not null"`
	OpenedAt      *time.Time     `json:"opened_at"`
	AcceptedAt    *time.Time     `json:"accepted_at"`
	AcceptedBy    string         `json:"accepted_by,omitempty" gorm:"size:64"`
	AcceptedAgent string         `json:"accepted_agent,omitempty" gorm:"size:512"`
}
