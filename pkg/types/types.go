package types

import (
	"time"
)

// DeliveryField names one of the two monotonic delivery-state flags of a message.
type DeliveryField string

const (
	FieldDelivered DeliveryField = "delivered"
	FieldRead      DeliveryField = "read"
)

// Message is a persisted chat message as handed to the hub for broadcast.
// Exactly one of ReceiverID and GroupID is set.
type Message struct {
	ID            string     `json:"_id"`
	SenderID      string     `json:"senderId"`
	ReceiverID    *string    `json:"receiverId,omitempty"`
	GroupID       *string    `json:"groupId,omitempty"`
	Text          string     `json:"text,omitempty"`
	Image         string     `json:"image,omitempty"`
	VoiceMessage  string     `json:"voiceMessage,omitempty"`
	VoiceDuration float64    `json:"voiceDuration,omitempty"`
	VoiceWaveform []float64  `json:"voiceWaveform,omitempty"`
	File          *File      `json:"file,omitempty"`
	Delivered     bool       `json:"delivered"`
	DeliveredAt   *time.Time `json:"deliveredAt,omitempty"`
	Read          bool       `json:"read"`
	ReadAt        *time.Time `json:"readAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// File is an attachment reference. The content itself lives elsewhere.
type File struct {
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// IsGroup reports whether the message targets a room rather than a single user.
func (m *Message) IsGroup() bool {
	return m.GroupID != nil && *m.GroupID != ""
}

// Flag returns the current value of a delivery-state field.
func (m *Message) Flag(field DeliveryField) bool {
	switch field {
	case FieldDelivered:
		return m.Delivered
	case FieldRead:
		return m.Read
	default:
		return false
	}
}

// User is an entry of the user directory.
type User struct {
	ID        string     `json:"_id"`
	FullName  string     `json:"fullName"`
	LastSeen  *time.Time `json:"lastSeen,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}
