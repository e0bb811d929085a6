package domain

import (
	"errors"
	"testing"
)

func TestDecodePayloadSendMessage(t *testing.T) {
	raw := []byte(`{"groups":["g1","g2"],"message":"Oi @todos"}`)
	groups, act, err := DecodePayload(ActionSendMessage, raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(groups) != 2 || groups[0] != "g1" {
		t.Fatalf("unexpected groups %v", groups)
	}
	sm, ok := act.(SendMessage)
	if !ok {
		t.Fatalf("expected SendMessage, got %T", act)
	}
	if sm.Message != "Oi @todos" {
		t.Fatalf("unexpected message %q", sm.Message)
	}
}

func TestDecodePayloadChangeGroupName(t *testing.T) {
	raw := []byte(`{"groups":["g1"],"name":"Ofertas","autoNumber":true}`)
	_, act, err := DecodePayload(ActionChangeGroupName, raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	cn := act.(ChangeGroupName)
	if cn.Name != "Ofertas" || !cn.AutoNumber {
		t.Fatalf("unexpected variant %+v", cn)
	}
}

func TestDecodePayloadSettingsActions(t *testing.T) {
	raw := []byte(`{"groups":["g1"]}`)
	for _, at := range []ActionType{ActionCloseGroups, ActionOpenGroups} {
		_, act, err := DecodePayload(at, raw)
		if err != nil {
			t.Fatalf("%s: %v", at, err)
		}
		if act.Type() != at {
			t.Fatalf("expected %s, got %s", at, act.Type())
		}
	}
}

func TestDecodePayloadRejectsEmptyRequiredFields(t *testing.T) {
	cases := []struct {
		at  ActionType
		raw string
	}{
		{ActionSendMessage, `{"groups":["g1"]}`},
		{ActionChangeGroupName, `{"groups":["g1"],"autoNumber":true}`},
		{ActionChangeGroupPhoto, `{"groups":["g1"]}`},
	}
	for _, c := range cases {
		if _, _, err := DecodePayload(c.at, []byte(c.raw)); err == nil {
			t.Fatalf("%s: expected error for %s", c.at, c.raw)
		}
	}
}

func TestDecodePayloadUnknownAction(t *testing.T) {
	_, _, err := DecodePayload("delete_groups", []byte(`{"groups":["g1"]}`))
	if !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}

func TestEncodePayloadRoundTrip(t *testing.T) {
	b, err := EncodePayload([]string{"g1"}, ChangeGroupName{Name: "VIP", AutoNumber: true})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	groups, act, err := DecodePayload(ActionChangeGroupName, b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(groups) != 1 || groups[0] != "g1" {
		t.Fatalf("unexpected groups %v", groups)
	}
	if cn := act.(ChangeGroupName); cn.Name != "VIP" || !cn.AutoNumber {
		t.Fatalf("unexpected variant %+v", cn)
	}
}
