package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

type ActionType string

const (
	ActionSendMessage       ActionType = "send_message"
	ActionUpdateDescription ActionType = "update_description"
	ActionCloseGroups       ActionType = "close_groups"
	ActionOpenGroups        ActionType = "open_groups"
	ActionChangeGroupName   ActionType = "change_group_name"
	ActionChangeGroupPhoto  ActionType = "change_group_photo"
)

// Action is the variant part of a job payload. One concrete type per
// ActionType so the dispatcher can switch exhaustively instead of
// probing optional fields.
type Action interface {
	Type() ActionType
}

type SendMessage struct {
	Message string `json:"message"`
}

type UpdateDescription struct {
	Description string `json:"description"`
}

type CloseGroups struct{}

type OpenGroups struct{}

type ChangeGroupName struct {
	Name       string `json:"name"`
	AutoNumber bool   `json:"autoNumber"`
}

type ChangeGroupPhoto struct {
	ImageBase64 string `json:"image"`
}

func (SendMessage) Type() ActionType       { return ActionSendMessage }
func (UpdateDescription) Type() ActionType { return ActionUpdateDescription }
func (CloseGroups) Type() ActionType       { return ActionCloseGroups }
func (OpenGroups) Type() ActionType        { return ActionOpenGroups }
func (ChangeGroupName) Type() ActionType   { return ActionChangeGroupName }
func (ChangeGroupPhoto) Type() ActionType  { return ActionChangeGroupPhoto }

var ErrUnknownAction = errors.New("unknown action type")

// payloadEnvelope is the stored payload shape: groups plus the
// action-specific fields at the same level.
type payloadEnvelope struct {
	Groups []string `json:"groups"`
}

// DecodePayload parses a raw payload for the given action type into the
// shared groups list and the typed action variant.
func DecodePayload(t ActionType, raw []byte) ([]string, Action, error) {
	var env payloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, fmt.Errorf("payload: %w", err)
	}

	act, err := decodeAction(t, raw)
	if err != nil {
		return nil, nil, err
	}
	return env.Groups, act, nil
}

func decodeAction(t ActionType, raw []byte) (Action, error) {
	switch t {
	case ActionSendMessage:
		var a SendMessage
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, err
		}
		if a.Message == "" {
			return nil, errors.New("send_message: empty message")
		}
		return a, nil
	case ActionUpdateDescription:
		var a UpdateDescription
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, err
		}
		return a, nil
	case ActionCloseGroups:
		return CloseGroups{}, nil
	case ActionOpenGroups:
		return OpenGroups{}, nil
	case ActionChangeGroupName:
		var a ChangeGroupName
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, err
		}
		if a.Name == "" {
			return nil, errors.New("change_group_name: empty name")
		}
		return a, nil
	case ActionChangeGroupPhoto:
		var a ChangeGroupPhoto
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, err
		}
		if a.ImageBase64 == "" {
			return nil, errors.New("change_group_photo: empty image")
		}
		return a, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, t)
	}
}

// EncodePayload is the inverse of DecodePayload, used when inserting
// jobs (bulk scheduling helper and tests).
func EncodePayload(groups []string, act Action) ([]byte, error) {
	m := map[string]any{"groups": groups}
	b, err := json.Marshal(act)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		m[k] = v
	}
	return json.Marshal(m)
}
