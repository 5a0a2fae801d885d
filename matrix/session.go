// Copyright 2026 The Pangea Chat Authors
// SPDX-License-Identifier: Apache-2.0

package matrix

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/segmentio/ksuid"

	"github.com/pangeachat/matrix-locust/lib/ref"
)

// Session is the per-identity protocol state: credentials, access
// token, device, and sync cursor for one simulated user. All mutable
// state is guarded by a mutex so the foreground action loop and the
// background sync loop can share one session.
type Session struct {
	client *Client
	bus    *Bus

	username string
	password string

	mu          sync.Mutex
	userID      ref.UserID
	accessToken string
	deviceID    string
	nextBatch   string
}

// NewSession creates a session for one identity. The bus may be nil,
// in which case responses are not observable.
func NewSession(client *Client, bus *Bus, username, password string) *Session {
	if bus == nil {
		bus = NewBus(client.Logger())
	}
	return &Session{
		client:   client,
		bus:      bus,
		username: username,
		password: password,
	}
}

// Username returns the localpart this session was created for.
func (s *Session) Username() string { return s.username }

// Password returns the password this session was created for.
func (s *Session) Password() string { return s.password }

// Bus returns the session's response bus.
func (s *Session) Bus() *Bus { return s.bus }

// Client returns the shared transport client.
func (s *Session) Client() *Client { return s.client }

// UserID returns the fully-qualified user ID, zero until the session
// is established.
func (s *Session) UserID() ref.UserID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// AccessToken returns the current access token, empty until the
// session is established.
func (s *Session) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken
}

// DeviceID returns the device ID, empty until the session is
// established.
func (s *Session) DeviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceID
}

// NextBatch returns the persisted sync cursor, empty before the first
// recorded sync.
func (s *Session) NextBatch() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextBatch
}

// LoggedIn reports whether the session holds an access token.
func (s *Session) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken != ""
}

// Domain returns the server name of the session's user ID, empty until
// the session is established.
func (s *Session) Domain() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID.IsZero() {
		return ""
	}
	return s.userID.Server()
}

// SeedCredentials restores a previously-persisted session: user ID,
// access token, and sync cursor from the token ledger. Empty strings
// are treated as absent and leave the corresponding field untouched,
// so a partial ledger row never clears state. Returns whether the seed
// produced a usable session (a non-empty access token).
func (s *Session) SeedCredentials(userID ref.UserID, accessToken, nextBatch string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !userID.IsZero() {
		s.userID = userID
	}
	if accessToken != "" {
		s.accessToken = accessToken
	}
	if nextBatch != "" {
		s.nextBatch = nextBatch
	}
	return s.accessToken != ""
}

// adoptAuth installs the result of a successful login or registration.
func (s *Session) adoptAuth(auth *AuthResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = auth.UserID
	s.accessToken = auth.AccessToken
	s.deviceID = auth.DeviceID
}

// token returns the access token or ErrNotLoggedIn.
func (s *Session) token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accessToken == "" {
		return "", ErrNotLoggedIn
	}
	return s.accessToken, nil
}

// Login authenticates the session. Exactly one of opts.Password or
// opts.Token must be set; with neither set the session's own password
// is used.
func (s *Session) Login(ctx context.Context, opts LoginOptions) (*AuthResponse, error) {
	if opts.Password == "" && opts.Token == "" {
		opts.Password = s.password
	}
	if (opts.Password == "") == (opts.Token == "") {
		return nil, fmt.Errorf("matrix: login requires exactly one of password or token")
	}

	request := loginRequest{
		InitialDeviceDisplayName: opts.DeviceName,
	}
	if opts.Password != "" {
		request.Type = "m.login.password"
		request.Identifier = &userIdentifier{Type: "m.id.user", User: s.username}
		request.Password = opts.Password
	} else {
		request.Type = "m.login.token"
		request.Token = opts.Token
	}

	responseBody, err := s.client.doRequest(ctx, http.MethodPost, clientAPIPrefix+"/login", "", request)
	if err != nil {
		return nil, err
	}

	auth, err := decodeAuthResponse(responseBody)
	if err != nil {
		return nil, err
	}
	s.adoptAuth(auth)
	s.bus.publish(Response{Kind: KindLogin, Session: s, Payload: auth})
	return auth, nil
}

// RegisterOptions holds parameters for Register.
type RegisterOptions struct {
	// DeviceName is the display name for the registered device.
	DeviceName string
	// RegistrationToken completes an m.login.registration_token stage
	// when the server requires one.
	RegistrationToken string
}

// Register creates the account through the interactive-auth
// negotiation and establishes the session with the returned
// credentials. A negotiation that finds no completable flow returns
// ErrNoSupportedFlow; the coordinator treats that as fatal to the
// whole run.
func (s *Session) Register(ctx context.Context, opts RegisterOptions) (*AuthResponse, error) {
	baseBody := map[string]any{
		"username": s.username,
		"password": s.password,
	}
	if opts.DeviceName != "" {
		baseBody["initial_device_display_name"] = opts.DeviceName
	}

	creds := uiaCredentials{
		Username:          s.username,
		Password:          s.password,
		RegistrationToken: opts.RegistrationToken,
	}

	auth, err := negotiateUIA(ctx, s.client, clientAPIPrefix+"/register", baseBody, creds)
	if err != nil {
		return nil, err
	}
	s.adoptAuth(auth)
	s.bus.publish(Response{Kind: KindRegister, Session: s, Payload: auth})
	return auth, nil
}

// sync performs one /sync call and returns the decoded response
// without touching the cursor.
func (s *Session) sync(ctx context.Context, opts SyncOptions) (*SyncResponse, error) {
	accessToken, err := s.token()
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	since := opts.Since
	if since == "" {
		since = s.NextBatch()
	}
	if since != "" {
		query.Set("since", since)
	}
	if opts.SetTimeout || opts.Timeout > 0 {
		query.Set("timeout", strconv.Itoa(opts.Timeout))
	}
	if opts.Filter != "" {
		query.Set("filter", opts.Filter)
	}
	if opts.FullState {
		query.Set("full_state", "true")
	}
	if opts.SetPresence != "" {
		query.Set("set_presence", opts.SetPresence)
	}

	responseBody, err := s.client.doRequest(ctx, http.MethodGet, clientAPIPrefix+"/sync", accessToken, nil, query)
	if err != nil {
		return nil, err
	}

	var response SyncResponse
	if err := json.Unmarshal(responseBody, &response); err != nil {
		return nil, fmt.Errorf("matrix: failed to decode sync response: %w", err)
	}
	return &response, nil
}

// Sync performs a one-shot /sync. The returned cursor is recorded on
// the session only when the session has no cursor yet, so a warm-up
// sync establishes the initial position without a later one-shot call
// silently skipping the continuous loop past unseen events.
func (s *Session) Sync(ctx context.Context, opts SyncOptions) (*SyncResponse, error) {
	response, err := s.sync(ctx, opts)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.nextBatch == "" {
		s.nextBatch = response.NextBatch
	}
	s.mu.Unlock()

	s.bus.publish(Response{Kind: KindSync, Session: s, Payload: response})
	return response, nil
}

// SyncAdvance performs one /sync and unconditionally advances the
// session cursor to the returned next_batch. The continuous sync loop
// uses this so every poll resumes where the previous one ended.
func (s *Session) SyncAdvance(ctx context.Context, opts SyncOptions) (*SyncResponse, error) {
	response, err := s.sync(ctx, opts)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.nextBatch = response.NextBatch
	s.mu.Unlock()

	s.bus.publish(Response{Kind: KindSync, Session: s, Payload: response})
	return response, nil
}

// CreateRoom creates a new room.
func (s *Session) CreateRoom(ctx context.Context, request CreateRoomRequest) (*CreateRoomResponse, error) {
	accessToken, err := s.token()
	if err != nil {
		return nil, err
	}

	responseBody, err := s.client.doRequest(ctx, http.MethodPost, clientAPIPrefix+"/createRoom", accessToken, request)
	if err != nil {
		return nil, err
	}

	var response CreateRoomResponse
	if err := json.Unmarshal(responseBody, &response); err != nil {
		return nil, fmt.Errorf("matrix: failed to decode createRoom response: %w", err)
	}
	s.bus.publish(Response{Kind: KindCreateRoom, Session: s, Payload: &response})
	return &response, nil
}

// Join joins a room by ID or alias.
func (s *Session) Join(ctx context.Context, roomIDOrAlias string) (*JoinResponse, error) {
	accessToken, err := s.token()
	if err != nil {
		return nil, err
	}

	path := clientAPIPrefix + "/join/" + url.PathEscape(roomIDOrAlias)
	responseBody, err := s.client.doRequest(ctx, http.MethodPost, path, accessToken, struct{}{})
	if err != nil {
		return nil, err
	}

	var response JoinResponse
	if err := json.Unmarshal(responseBody, &response); err != nil {
		return nil, fmt.Errorf("matrix: failed to decode join response: %w", err)
	}
	s.bus.publish(Response{Kind: KindJoin, Session: s, Payload: &response})
	return &response, nil
}

// Invite invites a user to a room the session is a member of.
func (s *Session) Invite(ctx context.Context, roomID ref.RoomID, userID ref.UserID) error {
	accessToken, err := s.token()
	if err != nil {
		return err
	}

	path := clientAPIPrefix + "/rooms/" + url.PathEscape(roomID.String()) + "/invite"
	_, err = s.client.doRequest(ctx, http.MethodPost, path, accessToken, InviteRequest{UserID: userID})
	return err
}

// PutState sends a state event into a room.
func (s *Session) PutState(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string, content any) (*SendEventResponse, error) {
	accessToken, err := s.token()
	if err != nil {
		return nil, err
	}

	path := clientAPIPrefix + "/rooms/" + url.PathEscape(roomID.String()) +
		"/state/" + url.PathEscape(string(eventType)) + "/" + url.PathEscape(stateKey)
	responseBody, err := s.client.doRequest(ctx, http.MethodPut, path, accessToken, content)
	if err != nil {
		return nil, err
	}

	var response SendEventResponse
	if err := json.Unmarshal(responseBody, &response); err != nil {
		return nil, fmt.Errorf("matrix: failed to decode state event response: %w", err)
	}
	s.bus.publish(Response{Kind: KindSendEvent, Session: s, Payload: &response})
	return &response, nil
}

// GetStateEvent fetches the content of one state event, decoded into
// content (a pointer).
func (s *Session) GetStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string, content any) error {
	accessToken, err := s.token()
	if err != nil {
		return err
	}

	path := clientAPIPrefix + "/rooms/" + url.PathEscape(roomID.String()) +
		"/state/" + url.PathEscape(string(eventType)) + "/" + url.PathEscape(stateKey)
	responseBody, err := s.client.doRequest(ctx, http.MethodGet, path, accessToken, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(responseBody, content); err != nil {
		return fmt.Errorf("matrix: failed to decode state event content: %w", err)
	}
	return nil
}

// RoomState fetches the full current state of a room.
func (s *Session) RoomState(ctx context.Context, roomID ref.RoomID) ([]Event, error) {
	accessToken, err := s.token()
	if err != nil {
		return nil, err
	}

	path := clientAPIPrefix + "/rooms/" + url.PathEscape(roomID.String()) + "/state"
	responseBody, err := s.client.doRequest(ctx, http.MethodGet, path, accessToken, nil)
	if err != nil {
		return nil, err
	}

	var events []Event
	if err := json.Unmarshal(responseBody, &events); err != nil {
		return nil, fmt.Errorf("matrix: failed to decode room state: %w", err)
	}
	return events, nil
}

// SendEvent sends a timeline event into a room. The transaction ID is
// generated fresh per call, so a retry by the caller is a new
// transaction; callers that need idempotent retry should use
// SendEventWithTxnID and reuse the ID.
func (s *Session) SendEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, content any) (*SendEventResponse, error) {
	return s.SendEventWithTxnID(ctx, roomID, eventType, ksuid.New().String(), content)
}

// SendEventWithTxnID sends a timeline event with an explicit
// transaction ID. The homeserver deduplicates resubmissions of the
// same (device, transaction ID) pair, which makes retried sends safe.
func (s *Session) SendEventWithTxnID(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, txnID string, content any) (*SendEventResponse, error) {
	accessToken, err := s.token()
	if err != nil {
		return nil, err
	}

	path := clientAPIPrefix + "/rooms/" + url.PathEscape(roomID.String()) +
		"/send/" + url.PathEscape(string(eventType)) + "/" + url.PathEscape(txnID)
	responseBody, err := s.client.doRequest(ctx, http.MethodPut, path, accessToken, content)
	if err != nil {
		return nil, err
	}

	var response SendEventResponse
	if err := json.Unmarshal(responseBody, &response); err != nil {
		return nil, fmt.Errorf("matrix: failed to decode send response: %w", err)
	}
	s.bus.publish(Response{Kind: KindSendEvent, Session: s, Payload: &response})
	return &response, nil
}

// SendMessage sends an m.room.message event.
func (s *Session) SendMessage(ctx context.Context, roomID ref.RoomID, content MessageContent) (*SendEventResponse, error) {
	return s.SendEvent(ctx, roomID, "m.room.message", content)
}

// SendReaction sends an m.reaction annotating eventID with the emoji
// key.
func (s *Session) SendReaction(ctx context.Context, roomID ref.RoomID, eventID ref.EventID, key string) (*SendEventResponse, error) {
	return s.SendEvent(ctx, roomID, "m.reaction", NewReaction(eventID, key))
}

// RoomMessages paginates through a room's timeline.
func (s *Session) RoomMessages(ctx context.Context, roomID ref.RoomID, opts RoomMessagesOptions) (*RoomMessagesResponse, error) {
	accessToken, err := s.token()
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("from", opts.From)
	direction := opts.Direction
	if direction == "" {
		direction = "b"
	}
	query.Set("dir", direction)
	if opts.To != "" {
		query.Set("to", opts.To)
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}

	path := clientAPIPrefix + "/rooms/" + url.PathEscape(roomID.String()) + "/messages"
	responseBody, err := s.client.doRequest(ctx, http.MethodGet, path, accessToken, nil, query)
	if err != nil {
		return nil, err
	}

	var response RoomMessagesResponse
	if err := json.Unmarshal(responseBody, &response); err != nil {
		return nil, fmt.Errorf("matrix: failed to decode messages response: %w", err)
	}
	return &response, nil
}

// Typing reports a typing notification for this session's user in a
// room. timeoutMS bounds how long the indicator stays up when typing
// is true.
func (s *Session) Typing(ctx context.Context, roomID ref.RoomID, typing bool, timeoutMS int) error {
	accessToken, err := s.token()
	if err != nil {
		return err
	}

	s.mu.Lock()
	userID := s.userID
	s.mu.Unlock()

	path := clientAPIPrefix + "/rooms/" + url.PathEscape(roomID.String()) +
		"/typing/" + url.PathEscape(userID.String())
	request := typingRequest{Typing: typing}
	if typing {
		request.Timeout = timeoutMS
	}
	_, err = s.client.doRequest(ctx, http.MethodPut, path, accessToken, request)
	return err
}

// SendReadReceipt marks eventID as read in a room.
func (s *Session) SendReadReceipt(ctx context.Context, roomID ref.RoomID, eventID ref.EventID) error {
	accessToken, err := s.token()
	if err != nil {
		return err
	}

	path := clientAPIPrefix + "/rooms/" + url.PathEscape(roomID.String()) +
		"/receipt/m.read/" + url.PathEscape(eventID.String())
	_, err = s.client.doRequest(ctx, http.MethodPost, path, accessToken, struct{}{})
	return err
}

// UserDisplayName fetches any user's public display name.
func (s *Session) UserDisplayName(ctx context.Context, userID ref.UserID) (string, error) {
	accessToken, err := s.token()
	if err != nil {
		return "", err
	}

	path := clientAPIPrefix + "/profile/" + url.PathEscape(userID.String()) + "/displayname"
	responseBody, err := s.client.doRequest(ctx, http.MethodGet, path, accessToken, nil)
	if err != nil {
		return "", err
	}

	var response DisplayNameResponse
	if err := json.Unmarshal(responseBody, &response); err != nil {
		return "", fmt.Errorf("matrix: failed to decode displayname response: %w", err)
	}
	return response.DisplayName, nil
}

// DisplayName fetches the session user's display name.
func (s *Session) DisplayName(ctx context.Context) (string, error) {
	s.mu.Lock()
	userID := s.userID
	s.mu.Unlock()
	return s.UserDisplayName(ctx, userID)
}

// SetDisplayName updates the session user's display name.
func (s *Session) SetDisplayName(ctx context.Context, displayName string) error {
	accessToken, err := s.token()
	if err != nil {
		return err
	}

	s.mu.Lock()
	userID := s.userID
	s.mu.Unlock()

	path := clientAPIPrefix + "/profile/" + url.PathEscape(userID.String()) + "/displayname"
	_, err = s.client.doRequest(ctx, http.MethodPut, path, accessToken, DisplayNameResponse{DisplayName: displayName})
	return err
}

// UserAvatarURL fetches any user's avatar URL.
func (s *Session) UserAvatarURL(ctx context.Context, userID ref.UserID) (string, error) {
	accessToken, err := s.token()
	if err != nil {
		return "", err
	}

	path := clientAPIPrefix + "/profile/" + url.PathEscape(userID.String()) + "/avatar_url"
	responseBody, err := s.client.doRequest(ctx, http.MethodGet, path, accessToken, nil)
	if err != nil {
		return "", err
	}

	var response AvatarURLResponse
	if err := json.Unmarshal(responseBody, &response); err != nil {
		return "", fmt.Errorf("matrix: failed to decode avatar_url response: %w", err)
	}
	return response.AvatarURL, nil
}

// AvatarURL fetches the session user's avatar URL.
func (s *Session) AvatarURL(ctx context.Context) (string, error) {
	s.mu.Lock()
	userID := s.userID
	s.mu.Unlock()
	return s.UserAvatarURL(ctx, userID)
}

// SetAvatarURL updates the session user's avatar URL.
func (s *Session) SetAvatarURL(ctx context.Context, avatarURL string) error {
	accessToken, err := s.token()
	if err != nil {
		return err
	}

	s.mu.Lock()
	userID := s.userID
	s.mu.Unlock()

	path := clientAPIPrefix + "/profile/" + url.PathEscape(userID.String()) + "/avatar_url"
	_, err = s.client.doRequest(ctx, http.MethodPut, path, accessToken, AvatarURLResponse{AvatarURL: avatarURL})
	return err
}
