package types

import (
	"regexp"
	"strings"
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

const (
	maxTextBytes       = 65536
	maxWaveformSamples = 1024
)

// Validate checks a message before it is persisted and routed.
func (m *Message) Validate() error {
	if !IsValidUserID(m.SenderID) {
		return ErrInvalidUserID
	}

	hasReceiver := m.ReceiverID != nil && *m.ReceiverID != ""
	hasGroup := m.IsGroup()
	if hasReceiver == hasGroup {
		return ErrMissingTarget
	}
	if hasReceiver && !IsValidUserID(*m.ReceiverID) {
		return ErrInvalidUserID
	}
	if hasGroup && !IsValidGroupID(*m.GroupID) {
		return ErrInvalidGroupID
	}

	if m.File != nil && (m.File.URL == "" || m.File.Size < 0) {
		return ErrInvalidFile
	}
	if strings.TrimSpace(m.Text) == "" && m.Image == "" && m.VoiceMessage == "" && m.File == nil {
		return ErrEmptyMessage
	}
	if len(m.Text) > maxTextBytes {
		return ErrContentTooLarge
	}
	if m.VoiceDuration < 0 {
		return ErrInvalidDuration
	}
	if len(m.VoiceWaveform) > maxWaveformSamples {
		return ErrWaveformTooLarge
	}

	return nil
}

// IsValidUserID checks an identity against the accepted format.
func IsValidUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > 64 {
		return false
	}
	return idRegex.MatchString(userID)
}

func IsValidGroupID(groupID string) bool {
	if len(groupID) < 1 || len(groupID) > 64 {
		return false
	}
	return idRegex.MatchString(groupID)
}

// NormalizeUserID maps the blank handshake identities a client may send
// ("", "undefined", "null") to the anonymous identity "".
func NormalizeUserID(raw string) string {
	u := strings.TrimSpace(raw)
	switch u {
	case "", "undefined", "null":
		return ""
	}
	return u
}
