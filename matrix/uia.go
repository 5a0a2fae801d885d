// Copyright 2026 The Pangea Chat Authors
// SPDX-License-Identifier: Apache-2.0

package matrix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Interactive-auth stage types this client can complete.
const (
	stageDummy             = "m.login.dummy"
	stagePassword          = "m.login.password"
	stageRegistrationToken = "m.login.registration_token"
)

// uiaCredentials holds the material available for completing
// interactive-auth stages.
type uiaCredentials struct {
	Username          string
	Password          string
	RegistrationToken string
}

// supportsStage reports whether the client can complete a stage of the
// given type with the credentials it holds.
func (c uiaCredentials) supportsStage(stage string) bool {
	switch stage {
	case stageDummy:
		return true
	case stagePassword:
		return c.Username != "" && c.Password != ""
	case stageRegistrationToken:
		return c.RegistrationToken != ""
	}
	return false
}

// stagePayload builds the auth block submitted for one stage. The
// negotiation session identifier is threaded through only when the
// server provided one.
func (c uiaCredentials) stagePayload(stage, session string) map[string]any {
	auth := map[string]any{"type": stage}
	if session != "" {
		auth["session"] = session
	}
	switch stage {
	case stagePassword:
		auth["identifier"] = userIdentifier{Type: "m.id.user", User: c.Username}
		auth["password"] = c.Password
	case stageRegistrationToken:
		auth["token"] = c.RegistrationToken
	}
	return auth
}

// negotiateUIA drives a user-interactive-auth negotiation to
// completion against the given endpoint. baseBody holds the fields
// that must accompany every submission (for registration: username,
// password, device name); the auth block is merged in per stage.
//
// The initial probe is sent without an auth block. A 2xx probe means
// the endpoint required no interactive auth and the negotiation
// short-circuits to success. A 401 carries the challenge: the first
// flow whose stages are all completable is selected and its stages
// submitted in order, each 401 advancing to the next stage and a 2xx
// completing the negotiation. Any other status aborts with the
// server's error. A challenge with no flows, or no flow this client
// can fully complete, aborts with ErrNoSupportedFlow.
func negotiateUIA(ctx context.Context, client *Client, path string, baseBody map[string]any, creds uiaCredentials) (*AuthResponse, error) {
	submit := func(auth map[string]any) ([]byte, error) {
		body := make(map[string]any, len(baseBody)+1)
		for key, value := range baseBody {
			body[key] = value
		}
		if auth != nil {
			body["auth"] = auth
		}
		return client.doRequest(ctx, http.MethodPost, path, "", body)
	}

	responseBody, err := submit(nil)
	if err == nil {
		return decodeAuthResponse(responseBody)
	}

	challenge, err := parseChallenge(responseBody, err)
	if err != nil {
		return nil, err
	}

	stages, err := selectFlow(challenge.Flows, creds)
	if err != nil {
		return nil, err
	}
	session := challenge.Session

	for _, stage := range stages {
		responseBody, err := submit(creds.stagePayload(stage, session))
		if err == nil {
			return decodeAuthResponse(responseBody)
		}

		challenge, err := parseChallenge(responseBody, err)
		if err != nil {
			return nil, err
		}
		if challenge.Session != "" {
			session = challenge.Session
		}
	}

	// Every stage of the selected flow was submitted and the server
	// still challenged. The flow advertisement did not match the
	// server's actual requirements.
	return nil, fmt.Errorf("matrix: interactive auth still incomplete after all stages of selected flow: %w", ErrNoSupportedFlow)
}

// parseChallenge interprets an error from a negotiation submission. A
// 401 *MatrixError with a parseable challenge body continues the
// negotiation; anything else aborts it.
func parseChallenge(responseBody []byte, err error) (*uiaChallenge, error) {
	var matrixErr *MatrixError
	if !errors.As(err, &matrixErr) || matrixErr.StatusCode != http.StatusUnauthorized {
		return nil, err
	}

	var challenge uiaChallenge
	if jsonErr := json.Unmarshal(responseBody, &challenge); jsonErr != nil {
		return nil, fmt.Errorf("matrix: failed to decode interactive-auth challenge: %w", jsonErr)
	}
	return &challenge, nil
}

// selectFlow picks the first advertised flow whose stages are all
// completable with the available credentials.
func selectFlow(flows []uiaFlow, creds uiaCredentials) ([]string, error) {
	for _, flow := range flows {
		if len(flow.Stages) == 0 {
			continue
		}
		supported := true
		for _, stage := range flow.Stages {
			if !creds.supportsStage(stage) {
				supported = false
				break
			}
		}
		if supported {
			return flow.Stages, nil
		}
	}
	return nil, ErrNoSupportedFlow
}

func decodeAuthResponse(responseBody []byte) (*AuthResponse, error) {
	var auth AuthResponse
	if err := json.Unmarshal(responseBody, &auth); err != nil {
		return nil, fmt.Errorf("matrix: failed to decode auth response: %w", err)
	}
	return &auth, nil
}
