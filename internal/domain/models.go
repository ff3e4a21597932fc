// Package domain defines the persistence model for the document store and
// the typed views (profiles, ratings, listings, settings, verifications)
// that services decode from it.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Document is a single JSON document addressed by (collection, id).
//
// Collections are slash-separated paths such as "profiles" or
// "profiles/u2/ratings". Fields holds the top-level document attributes;
// merge writes replace only the keys they carry.
//
// Fields:
//   - Collection / ID: composite primary key.
//   - Fields: JSON object stored via gorm.io/datatypes.
//   - CreatedAt: set once on first write, used for creation ordering.
//   - UpdatedAt: bumped on every write, used for ETags.
//   - Version: incremented on every write; guards compare-and-swap updates.
type Document struct {
	Collection string            `json:"collection" gorm:"type:varchar(255);primaryKey;index:idx_doc_order,priority:1"`
	ID         string            `json:"id"         gorm:"type:varchar(64);primaryKey"`
	Fields     datatypes.JSONMap `json:"fields"     gorm:"not null"`
	CreatedAt  time.Time         `json:"created_at" gorm:"not null;index:idx_doc_order,priority:2"`
	UpdatedAt  time.Time         `json:"updated_at" gorm:"not null"`
	Version    int64             `json:"version"    gorm:"not null;default:0"`
}

// TableName returns the database table name for Document.
func (Document) TableName() string { return "documents" }

// Profile is the public view of profiles/{uid}.
type Profile struct {
	ID          string `json:"id"          example:"u2"`
	DisplayName string `json:"displayName" example:"Maya"`
	Phone       string `json:"phone,omitempty" example:"+15551234567"`
	VideoURL    string `json:"videoUrl,omitempty" example:"https://youtu.be/abc"`
	Admin       bool   `json:"admin"`
}

// Rating is one reviewer's score for a subject profile, stored at
// profiles/{subjectId}/ratings/{id}. Deleted ratings stay in storage but
// are never returned by reads.
type Rating struct {
	ID            string    `json:"id"            example:"01J9Z8Q4R2V7N6K3M1T0W5Y8XA"`
	SubjectID     string    `json:"subjectId"     example:"u2"`
	ReviewerID    string    `json:"reviewerId"    example:"u1"`
	ReviewerLabel string    `json:"reviewerLabel" example:"Sam"`
	Stars         int       `json:"stars"         example:"5"`
	Comment       string    `json:"comment,omitempty"`
	MediaURL      string    `json:"mediaUrl,omitempty"`
	Deleted       bool      `json:"-"`
	ReplyText     string    `json:"replyText"`
	ReplyMediaURL string    `json:"replyMediaUrl"`
	CreatedAt     time.Time `json:"createdAt"`
}

// HasReply reports whether the subject has replied to the rating.
func (r Rating) HasReply() bool { return r.ReplyText != "" || r.ReplyMediaURL != "" }

// RatingSummary bundles the visible ratings of a profile with their mean.
type RatingSummary struct {
	SubjectID string   `json:"subjectId"`
	Average   float64  `json:"average" example:"4.5"`
	Count     int      `json:"count"   example:"2"`
	Ratings   []Rating `json:"ratings"`
}

// Listing kinds; each kind is stored in the collection of the same name.
const (
	ListingOffers   = "offers"
	ListingRequests = "requests"
)

// Listing is a posted service offer or service request.
//
// UserName and UserPhone are copied from the poster's profile at posting
// time. They are cleared before the listing is shown to anonymous callers.
type Listing struct {
	ID        string     `json:"id"`
	Kind      string     `json:"kind"    example:"offers"`
	Service   string     `json:"service" example:"Lawn mowing"`
	Date      string     `json:"date"    example:"2025-07-01"`
	Time      string     `json:"time"    example:"09:30"`
	Price     float64    `json:"price"   example:"20"`
	Address   string     `json:"address" example:"12 Elm St"`
	UserID    string     `json:"userId"`
	UserName  string     `json:"userName,omitempty"`
	UserPhone string     `json:"userPhone,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	DeletedAt *time.Time `json:"-"`
}

// Settings is the global configuration document (config/global).
type Settings struct {
	SMSValidation bool `json:"smsValidation"`
}

// PhoneVerification is a pending one-time-code challenge stored at
// phoneVerifications/{id}. The code itself is never stored, only its hash.
type PhoneVerification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Phone     string    `json:"phone"     example:"+15551234567"`
	CodeHash  string    `json:"-"`
	Attempts  int       `json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
	Consumed  bool      `json:"-"`
}
