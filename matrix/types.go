// Copyright 2026 The Pangea Chat Authors
// SPDX-License-Identifier: Apache-2.0

package matrix

import (
	"github.com/pangeachat/matrix-locust/lib/ref"
)

// LoginOptions holds parameters for Session.Login. Exactly one of
// Password or Token must be set.
type LoginOptions struct {
	// Password authenticates with m.login.password.
	Password string
	// Token authenticates with m.login.token (e.g., from SSO).
	Token string
	// DeviceName is the display name for a newly-created device.
	DeviceName string
}

// loginRequest is the wire body for POST /login.
type loginRequest struct {
	Type                     string          `json:"type"`
	Identifier               *userIdentifier `json:"identifier,omitempty"`
	Password                 string          `json:"password,omitempty"`
	Token                    string          `json:"token,omitempty"`
	DeviceID                 string          `json:"device_id,omitempty"`
	InitialDeviceDisplayName string          `json:"initial_device_display_name,omitempty"`
}

// userIdentifier is the m.id.user identifier block used by login and
// the m.login.password UIA stage.
type userIdentifier struct {
	Type string `json:"type"`
	User string `json:"user"`
}

// AuthResponse is the success body of /login and /register.
type AuthResponse struct {
	UserID      ref.UserID `json:"user_id"`
	AccessToken string     `json:"access_token"`
	DeviceID    string     `json:"device_id"`
}

// uiaChallenge is the 401 body of an interactive-auth negotiation:
// the available flows, the stages already completed, and the opaque
// negotiation session identifier (which some servers omit).
type uiaChallenge struct {
	Flows     []uiaFlow      `json:"flows"`
	Completed []string       `json:"completed"`
	Session   string         `json:"session"`
	Params    map[string]any `json:"params"`
}

// uiaFlow is one ordered list of verification stages.
type uiaFlow struct {
	Stages []string `json:"stages"`
}

// CreateRoomRequest holds parameters for creating a Matrix room.
type CreateRoomRequest struct {
	Name                      string         `json:"name,omitempty"`
	Topic                     string         `json:"topic,omitempty"`
	Alias                     string         `json:"room_alias_name,omitempty"` // local alias without # or :server
	Visibility                string         `json:"visibility,omitempty"`      // "public" or "private"
	Preset                    string         `json:"preset,omitempty"`          // "private_chat", "public_chat", "trusted_private_chat"
	Invite                    []string       `json:"invite,omitempty"`
	CreationContent           map[string]any `json:"creation_content,omitempty"` // {"type": "m.space"} for spaces
	InitialState              []StateEvent   `json:"initial_state,omitempty"`
	PowerLevelContentOverride map[string]any `json:"power_level_content_override,omitempty"`
	IsDirect                  bool           `json:"is_direct,omitempty"`
}

// CreateRoomResponse is returned by CreateRoom.
type CreateRoomResponse struct {
	RoomID ref.RoomID `json:"room_id"`
}

// StateEvent represents a Matrix state event for room creation or
// state listing.
type StateEvent struct {
	Type     ref.EventType `json:"type"`
	StateKey string        `json:"state_key"`
	Content  any           `json:"content"`
}

// MessageContent is the content body of an m.room.message event.
type MessageContent struct {
	MsgType string `json:"msgtype"`
	Body    string `json:"body"`
}

// NewTextMessage creates a plain m.text message.
func NewTextMessage(body string) MessageContent {
	return MessageContent{
		MsgType: "m.text",
		Body:    body,
	}
}

// ReactionContent is the content body of an m.reaction event: an
// annotation relating an emoji key to an existing event.
type ReactionContent struct {
	RelatesTo ReactionRelation `json:"m.relates_to"`
}

// ReactionRelation is the m.annotation relation inside a reaction.
type ReactionRelation struct {
	RelType string      `json:"rel_type"`
	EventID ref.EventID `json:"event_id"`
	Key     string      `json:"key"`
}

// NewReaction creates an m.reaction content annotating eventID with
// the emoji key.
func NewReaction(eventID ref.EventID, key string) ReactionContent {
	return ReactionContent{
		RelatesTo: ReactionRelation{
			RelType: "m.annotation",
			EventID: eventID,
			Key:     key,
		},
	}
}

// Event represents a Matrix event from the server.
type Event struct {
	EventID        ref.EventID    `json:"event_id"`
	Type           ref.EventType  `json:"type"`
	Sender         ref.UserID     `json:"sender"`
	OriginServerTS int64          `json:"origin_server_ts"`
	Content        map[string]any `json:"content"`
	StateKey       *string        `json:"state_key,omitempty"`
}

// SendEventResponse is returned by SendEvent, SendMessage, and
// PutState.
type SendEventResponse struct {
	EventID ref.EventID `json:"event_id"`
}

// JoinResponse is returned by Join.
type JoinResponse struct {
	RoomID ref.RoomID `json:"room_id"`
}

// SyncOptions controls the behavior of the /sync endpoint.
type SyncOptions struct {
	// Since is the cursor to resume from. Empty means "use the
	// session's persisted cursor"; if the session has none either,
	// the call is an initial sync.
	Since string
	// Timeout is the server-side long-poll hold in milliseconds.
	Timeout int
	// SetTimeout distinguishes "timeout=0, return immediately" from
	// "no timeout parameter at all".
	SetTimeout bool
	// Filter is a filter ID or inline JSON filter.
	Filter string
	// FullState requests full room state regardless of Since.
	FullState bool
	// SetPresence is the presence state to advertise while syncing
	// ("online", "offline", "unavailable"). Empty omits the parameter.
	SetPresence string
}

// SyncResponse is the top-level response from /sync.
type SyncResponse struct {
	NextBatch string       `json:"next_batch"`
	Rooms     RoomsSection `json:"rooms"`
}

// RoomsSection contains per-room sync data grouped by membership.
type RoomsSection struct {
	Join   map[ref.RoomID]JoinedRoom  `json:"join,omitempty"`
	Invite map[ref.RoomID]InvitedRoom `json:"invite,omitempty"`
	Leave  map[ref.RoomID]LeftRoom    `json:"leave,omitempty"`
}

// JoinedRoom contains sync data for a room the user has joined.
type JoinedRoom struct {
	Timeline TimelineSection `json:"timeline"`
	State    StateSection    `json:"state"`
}

// InvitedRoom contains sync data for a room the user was invited to.
type InvitedRoom struct {
	InviteState StateSection `json:"invite_state"`
}

// LeftRoom contains sync data for a room the user has left.
type LeftRoom struct {
	Timeline TimelineSection `json:"timeline"`
	State    StateSection    `json:"state"`
}

// TimelineSection contains timeline events from a sync response.
type TimelineSection struct {
	Events    []Event `json:"events"`
	PrevBatch string  `json:"prev_batch"`
	Limited   bool    `json:"limited"`
}

// StateSection contains state events from a sync response.
type StateSection struct {
	Events []Event `json:"events"`
}

// RoomMessagesOptions controls pagination for /messages.
type RoomMessagesOptions struct {
	From      string // pagination token; required by the endpoint
	To        string // optional stop token
	Direction string // "b" (backward/older) or "f" (forward/newer)
	Limit     int    // max events to return; 0 uses server default
}

// RoomMessagesResponse is returned by RoomMessages.
type RoomMessagesResponse struct {
	Start string  `json:"start"`
	End   string  `json:"end"`
	Chunk []Event `json:"chunk"`
}

// typingRequest is the wire body for PUT /typing.
type typingRequest struct {
	Typing  bool `json:"typing"`
	Timeout int  `json:"timeout,omitempty"`
}

// DisplayNameResponse is returned by the /profile displayname endpoint.
type DisplayNameResponse struct {
	DisplayName string `json:"displayname"`
}

// AvatarURLResponse is returned by the /profile avatar_url endpoint.
type AvatarURLResponse struct {
	AvatarURL string `json:"avatar_url"`
}

// RoomTagsResponse is returned by the room tags endpoint: tag name to
// tag metadata.
type RoomTagsResponse struct {
	Tags map[string]RoomTag `json:"tags"`
}

// RoomTag is the metadata attached to one room tag.
type RoomTag struct {
	Order *float64 `json:"order,omitempty"`
}

// InviteRequest holds the user ID to invite to a room.
type InviteRequest struct {
	UserID ref.UserID `json:"user_id"`
}
