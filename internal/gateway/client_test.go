package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

type captured struct {
	method string
	path   string
	query  map[string]string
	header http.Header
	body   map[string]any
}

func newTestClient(t *testing.T, status int, respBody string) (*Client, *captured, func()) {
	t.Helper()
	cap := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cap.method = r.Method
		cap.path = r.URL.Path
		cap.header = r.Header.Clone()
		cap.query = map[string]string{}
		for k := range r.URL.Query() {
			cap.query[k] = r.URL.Query().Get(k)
		}
		if b, _ := io.ReadAll(r.Body); len(b) > 0 {
			json.Unmarshal(b, &cap.body)
		}
		w.WriteHeader(status)
		io.WriteString(w, respBody)
	}))
	c := &Client{BaseURL: srv.URL, APIKey: "key123", HTTP: srv.Client()}
	return c, cap, srv.Close
}

func TestSendText(t *testing.T) {
	c, cap, done := newTestClient(t, http.StatusOK, `{}`)
	defer done()

	err := c.SendText(context.Background(), "inst1", "g@g.us", "hello", []string{"a@s.whatsapp.net"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if cap.method != http.MethodPost || cap.path != "/message/sendText/inst1" {
		t.Fatalf("%s %s", cap.method, cap.path)
	}
	if cap.header.Get("apikey") != "key123" {
		t.Fatalf("apikey header %q", cap.header.Get("apikey"))
	}
	if cap.body["number"] != "g@g.us" || cap.body["text"] != "hello" {
		t.Fatalf("body %+v", cap.body)
	}
	if _, ok := cap.body["mentioned"]; !ok {
		t.Fatalf("mentioned missing from body %+v", cap.body)
	}
}

func TestSendTextOmitsEmptyMentions(t *testing.T) {
	c, cap, done := newTestClient(t, http.StatusOK, `{}`)
	defer done()

	if err := c.SendText(context.Background(), "inst1", "g@g.us", "hi", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, ok := cap.body["mentioned"]; ok {
		t.Fatalf("mentioned must be omitted, body %+v", cap.body)
	}
}

func TestUpdateGroupSetting(t *testing.T) {
	c, cap, done := newTestClient(t, http.StatusOK, `{}`)
	defer done()

	if err := c.UpdateGroupSetting(context.Background(), "inst1", "g@g.us", "announcement"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if cap.path != "/group/updateSetting/inst1" || cap.query["groupJid"] != "g@g.us" {
		t.Fatalf("%s query %+v", cap.path, cap.query)
	}
	if cap.body["action"] != "announcement" {
		t.Fatalf("body %+v", cap.body)
	}
}

func TestParticipants(t *testing.T) {
	c, cap, done := newTestClient(t, http.StatusOK,
		`{"participants":[{"jid":"a@s.whatsapp.net"},{"jid":"b@s.whatsapp.net"}]}`)
	defer done()

	jids, err := c.Participants(context.Background(), "inst1", "g@g.us")
	if err != nil {
		t.Fatalf("participants: %v", err)
	}
	if cap.path != "/group/participants/inst1" || cap.query["groupJid"] != "g@g.us" {
		t.Fatalf("%s query %+v", cap.path, cap.query)
	}
	if len(jids) != 2 || jids[0] != "a@s.whatsapp.net" {
		t.Fatalf("jids %+v", jids)
	}
}

func TestRecentMessagesExtractsText(t *testing.T) {
	c, cap, done := newTestClient(t, http.StatusOK, `{"messages":[
		{"id":"1","senderJid":"a@s","message":{"conversation":"plain"}},
		{"id":"2","senderJid":"b@s","message":{"extendedTextMessage":{"text":"extended"}}},
		{"id":"3","senderJid":"c@s","fromMe":true,"message":{"imageMessage":{"caption":"caption"}}}
	]}`)
	defer done()

	msgs, err := c.RecentMessages(context.Background(), "inst1", "g@g.us", 50)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if cap.query["limit"] != "50" {
		t.Fatalf("query %+v", cap.query)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages", len(msgs))
	}
	for i, want := range []string{"plain", "extended", "caption"} {
		if msgs[i].Text != want {
			t.Fatalf("msg %d text %q, want %q", i, msgs[i].Text, want)
		}
	}
	if !msgs[2].FromMe {
		t.Fatalf("fromMe not decoded")
	}
}

func TestSessionIdentity(t *testing.T) {
	c, _, done := newTestClient(t, http.StatusOK, `{"jid":"me@s.whatsapp.net"}`)
	defer done()

	jid, err := c.SessionIdentity(context.Background(), "inst1")
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	if jid != "me@s.whatsapp.net" {
		t.Fatalf("jid %q", jid)
	}
}

func TestCallErrorOnNon2xx(t *testing.T) {
	c, _, done := newTestClient(t, http.StatusForbidden, `{"message":"not admin"}`)
	defer done()

	err := c.SendText(context.Background(), "inst1", "g@g.us", "x", nil)
	var ce *CallError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CallError, got %v", err)
	}
	if ce.StatusCode != http.StatusForbidden {
		t.Fatalf("status %d", ce.StatusCode)
	}
	if ce.Error() != "gateway 403: not admin" {
		t.Fatalf("error text %q", ce.Error())
	}
}

func TestReason(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&CallError{StatusCode: 401}, "você não é admin deste grupo"},
		{&CallError{StatusCode: 403}, "você não é admin deste grupo"},
		{&CallError{StatusCode: 404}, "grupo não encontrado"},
		{&CallError{StatusCode: 500, Body: []byte(`{"error":"boom"}`)}, "erro ao executar a ação: boom"},
		{&CallError{StatusCode: 500}, "erro ao executar a ação"},
		{errors.New("dial tcp: refused"), "erro ao executar a ação: dial tcp: refused"},
	}
	for _, c := range cases {
		if got := Reason(c.err); got != c.want {
			t.Fatalf("Reason(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}
