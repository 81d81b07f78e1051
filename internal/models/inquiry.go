package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InquiryType is the kind of inquiry a visitor submits.
type InquiryType string

const (
	InquiryTypeGeneral  InquiryType = "general"
	InquiryTypeProperty InquiryType = "property"
	InquiryTypeSupport  InquiryType = "support"
	InquiryTypeFeedback InquiryType = "feedback"
)

func (t InquiryType) Valid() bool {
	switch t {
	case InquiryTypeGeneral, InquiryTypeProperty, InquiryTypeSupport, InquiryTypeFeedback:
		return true
	}
	return false
}

// InquiryStatus is the lifecycle state of an inquiry.
// Any status may move to any other status; there is no enforced ordering.
type InquiryStatus string

const (
	InquiryStatusPending    InquiryStatus = "pending"
	InquiryStatusInProgress InquiryStatus = "in_progress"
	InquiryStatusResolved   InquiryStatus = "resolved"
	InquiryStatusClosed     InquiryStatus = "closed"
)

// InquiryStatuses lists every lifecycle state.
var InquiryStatuses = []InquiryStatus{
	InquiryStatusPending,
	InquiryStatusInProgress,
	InquiryStatusResolved,
	InquiryStatusClosed,
}

func (s InquiryStatus) Valid() bool {
	for _, known := range InquiryStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Reply is one entry of an inquiry's append-only thread.
type Reply struct {
	Message   string    `bson:"message" json:"message"`
	IsAdmin   bool      `bson:"isAdmin" json:"isAdmin"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// Inquiry is a message from a visitor, optionally about a specific property.
type Inquiry struct {
	Base       `bson:",inline"`
	Type       InquiryType         `bson:"type" json:"type"`
	PropertyID *primitive.ObjectID `bson:"propertyId,omitempty" json:"propertyId,omitempty"`
	Property   *PropertyRef        `bson:"property,omitempty" json:"property,omitempty"`
	UserID     *primitive.ObjectID `bson:"userId,omitempty" json:"userId,omitempty"`
	Name       string              `bson:"name" json:"name"`
	Email      string              `bson:"email" json:"email"`
	Phone      string              `bson:"phone,omitempty" json:"phone,omitempty"`
	Subject    string              `bson:"subject" json:"subject"`
	Message    string              `bson:"message" json:"message"`
	Status     InquiryStatus       `bson:"status" json:"status"`
	IsRead     bool                `bson:"isRead" json:"isRead"`
	Replies    []Reply             `bson:"replies" json:"replies"`
}

// OwnedBy reports whether email is the submitter's address, ignoring case.
func (i *Inquiry) OwnedBy(email string) bool {
	return email != "" && strings.EqualFold(strings.TrimSpace(i.Email), strings.TrimSpace(email))
}

// Actor is the authenticated principal performing an operation.
type Actor struct {
	UserID primitive.ObjectID
	Email  string
	Role   Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
