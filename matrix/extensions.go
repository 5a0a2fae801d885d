// Copyright 2026 The Pangea Chat Authors
// SPDX-License-Identifier: Apache-2.0

package matrix

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pangeachat/matrix-locust/lib/ref"
)

// The helpers in this file compose Session operations into the
// higher-level gestures the traffic scenarios need: room tags and the
// mirrored parent/child state writes that build a space hierarchy.
// They take the Session as an argument rather than living on it, so
// new gestures can be added without widening the session's own API.

// RoomTags fetches the tags the session's user has put on a room.
func RoomTags(ctx context.Context, s *Session, roomID ref.RoomID) (map[string]RoomTag, error) {
	accessToken, err := s.token()
	if err != nil {
		return nil, err
	}

	path := clientAPIPrefix + "/user/" + url.PathEscape(s.UserID().String()) +
		"/rooms/" + url.PathEscape(roomID.String()) + "/tags"
	responseBody, err := s.client.doRequest(ctx, http.MethodGet, path, accessToken, nil)
	if err != nil {
		return nil, err
	}

	var response RoomTagsResponse
	if err := json.Unmarshal(responseBody, &response); err != nil {
		return nil, fmt.Errorf("matrix: failed to decode tags response: %w", err)
	}
	return response.Tags, nil
}

// SetRoomTag puts one tag on a room for the session's user.
func SetRoomTag(ctx context.Context, s *Session, roomID ref.RoomID, tag string, order *float64) error {
	accessToken, err := s.token()
	if err != nil {
		return err
	}

	path := clientAPIPrefix + "/user/" + url.PathEscape(s.UserID().String()) +
		"/rooms/" + url.PathEscape(roomID.String()) + "/tags/" + url.PathEscape(tag)
	_, err = s.client.doRequest(ctx, http.MethodPut, path, accessToken, RoomTag{Order: order})
	return err
}

// spaceChildContent is the m.space.child state content pointing at a
// child room.
type spaceChildContent struct {
	Via []string `json:"via"`
}

// spaceParentContent is the m.space.parent state content pointing back
// at the parent space.
type spaceParentContent struct {
	Via       []string `json:"via"`
	Canonical bool     `json:"canonical,omitempty"`
}

// AddChildRoom links a room into a space with the mirrored pair of
// state events the hierarchy needs: m.space.child on the parent keyed
// by the child's room ID, then m.space.parent on the child keyed by
// the parent's. Both writes must land for clients to render the
// hierarchy from either side; the first failure aborts so a retry
// replays the pair from the top (both writes are idempotent state
// puts).
func AddChildRoom(ctx context.Context, s *Session, parent, child ref.RoomID, via []string) error {
	if len(via) == 0 {
		domain := s.Domain()
		if domain == "" {
			return fmt.Errorf("matrix: cannot derive via server for space link: %w", ErrNotLoggedIn)
		}
		via = []string{domain}
	}

	if _, err := s.PutState(ctx, parent, "m.space.child", child.String(), spaceChildContent{Via: via}); err != nil {
		return fmt.Errorf("matrix: failed to write m.space.child on %s: %w", parent, err)
	}
	if _, err := s.PutState(ctx, child, "m.space.parent", parent.String(), spaceParentContent{Via: via, Canonical: true}); err != nil {
		return fmt.Errorf("matrix: failed to write m.space.parent on %s: %w", child, err)
	}
	return nil
}

// SpaceChildren reads the m.space.child entries of a space from its
// full room state.
func SpaceChildren(ctx context.Context, s *Session, space ref.RoomID) ([]ref.RoomID, error) {
	events, err := s.RoomState(ctx, space)
	if err != nil {
		return nil, err
	}

	var children []ref.RoomID
	for _, event := range events {
		if event.Type != "m.space.child" || event.StateKey == nil {
			continue
		}
		child, err := ref.ParseRoomID(*event.StateKey)
		if err != nil {
			continue
		}
		children = append(children, child)
	}
	return children, nil
}
