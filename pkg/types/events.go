package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Inbound event names (client -> hub).
const (
	EventJoinGroup        = "joinGroup"
	EventLeaveGroup       = "leaveGroup"
	EventStartTyping      = "startTyping"
	EventStopTyping       = "stopTyping"
	EventMessageDelivered = "messageDelivered"
	EventMessageRead      = "messageRead"
)

// Outbound event names (hub -> client). messageDelivered and messageRead are
// shared with the inbound set.
const (
	EventGetOnlineUsers  = "getOnlineUsers"
	EventUserTyping      = "userTyping"
	EventUserStopTyping  = "userStopTyping"
	EventNewMessage      = "newMessage"
	EventNewGroupMessage = "newGroupMessage"
)

// Envelope is the JSON frame exchanged in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound is a hub -> client event before serialization.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// InboundEvent is the closed set of client events. Only types in this
// package implement it.
type InboundEvent interface {
	EventName() string
	inbound()
}

type JoinGroup struct{ GroupID string }
type LeaveGroup struct{ GroupID string }
type StartTyping struct{ ReceiverID string }
type StopTyping struct{ ReceiverID string }
type MessageDelivered struct{ MessageID string }
type MessageRead struct{ MessageID string }

func (JoinGroup) EventName() string        { return EventJoinGroup }
func (LeaveGroup) EventName() string       { return EventLeaveGroup }
func (StartTyping) EventName() string      { return EventStartTyping }
func (StopTyping) EventName() string       { return EventStopTyping }
func (MessageDelivered) EventName() string { return EventMessageDelivered }
func (MessageRead) EventName() string      { return EventMessageRead }

func (JoinGroup) inbound()        {}
func (LeaveGroup) inbound()       {}
func (StartTyping) inbound()      {}
func (StopTyping) inbound()       {}
func (MessageDelivered) inbound() {}
func (MessageRead) inbound()      {}

type groupPayload struct {
	GroupID string `json:"groupId"`
}

type typingPayload struct {
	ReceiverID string `json:"receiverId"`
}

type receiptPayload struct {
	MessageID string `json:"messageId"`
}

// DecodeInbound parses a client frame into its typed event.
func DecodeInbound(data []byte) (InboundEvent, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	switch env.Event {
	case EventJoinGroup, EventLeaveGroup:
		groupID, err := decodeGroupID(env.Data)
		if err != nil {
			return nil, err
		}
		if env.Event == EventJoinGroup {
			return JoinGroup{GroupID: groupID}, nil
		}
		return LeaveGroup{GroupID: groupID}, nil

	case EventStartTyping, EventStopTyping:
		var p typingPayload
		if err := decodePayload(env.Data, &p); err != nil {
			return nil, err
		}
		if p.ReceiverID == "" {
			return nil, ErrMissingReceiver
		}
		if env.Event == EventStartTyping {
			return StartTyping{ReceiverID: p.ReceiverID}, nil
		}
		return StopTyping{ReceiverID: p.ReceiverID}, nil

	case EventMessageDelivered, EventMessageRead:
		var p receiptPayload
		if err := decodePayload(env.Data, &p); err != nil {
			return nil, err
		}
		if p.MessageID == "" {
			return nil, ErrMissingMessageID
		}
		if env.Event == EventMessageDelivered {
			return MessageDelivered{MessageID: p.MessageID}, nil
		}
		return MessageRead{MessageID: p.MessageID}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

// decodeGroupID accepts both {"groupId": "g1"} and a bare "g1".
func decodeGroupID(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var groupID string
		if err := json.Unmarshal(trimmed, &groupID); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		if groupID == "" {
			return "", ErrMissingGroup
		}
		return groupID, nil
	}

	var p groupPayload
	if err := decodePayload(raw, &p); err != nil {
		return "", err
	}
	if p.GroupID == "" {
		return "", ErrMissingGroup
	}
	return p.GroupID, nil
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return ErrMalformedEvent
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return nil
}

// UserEvent is the payload of userTyping and userStopTyping.
type UserEvent struct {
	UserID string `json:"userId"`
}

// DeliveredReceipt is the payload of the outbound messageDelivered event.
type DeliveredReceipt struct {
	MessageID   string    `json:"messageId"`
	Delivered   bool      `json:"delivered"`
	DeliveredAt time.Time `json:"deliveredAt"`
}

// ReadReceipt is the payload of the outbound messageRead event.
type ReadReceipt struct {
	MessageID string    `json:"messageId"`
	Read      bool      `json:"read"`
	ReadAt    time.Time `json:"readAt"`
}

// NewReceipt builds the outbound acknowledgement for a field transition.
func NewReceipt(messageID string, field DeliveryField, at time.Time) *Outbound {
	if field == FieldRead {
		return &Outbound{Event: EventMessageRead, Data: ReadReceipt{MessageID: messageID, Read: true, ReadAt: at}}
	}
	return &Outbound{Event: EventMessageDelivered, Data: DeliveredReceipt{MessageID: messageID, Delivered: true, DeliveredAt: at}}
}

func OnlineUsersEvent(userIDs []string) *Outbound {
	if userIDs == nil {
		userIDs = []string{}
	}
	return &Outbound{Event: EventGetOnlineUsers, Data: userIDs}
}

func TypingEvent(userID string) *Outbound {
	return &Outbound{Event: EventUserTyping, Data: UserEvent{UserID: userID}}
}

func StopTypingEvent(userID string) *Outbound {
	return &Outbound{Event: EventUserStopTyping, Data: UserEvent{UserID: userID}}
}

// MessageEvent wraps a message as newMessage or newGroupMessage.
func MessageEvent(message *Message) *Outbound {
	if message.IsGroup() {
		return &Outbound{Event: EventNewGroupMessage, Data: message}
	}
	return &Outbound{Event: EventNewMessage, Data: message}
}
