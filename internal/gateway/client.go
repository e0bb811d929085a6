package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"zapmark/internal/observability"
)

// Client talks to the WhatsApp-bridge HTTP API. One bridge serves many
// sessions ("instances"); every call names the instance it acts for.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// ChatMessage is one message from a group's recent history. Text is
// extracted from whichever sub-type carries it (plain text, extended
// text, image caption).
type ChatMessage struct {
	ID        string `json:"id"`
	SenderJID string `json:"senderJid"`
	FromMe    bool   `json:"fromMe"`
	Text      string `json:"-"`

	Message struct {
		Conversation string `json:"conversation"`
		ExtendedText struct {
			Text string `json:"text"`
		} `json:"extendedTextMessage"`
		Image struct {
			Caption string `json:"caption"`
		} `json:"imageMessage"`
	} `json:"message"`
}

func (m *ChatMessage) extractText() {
	switch {
	case m.Message.Conversation != "":
		m.Text = m.Message.Conversation
	case m.Message.ExtendedText.Text != "":
		m.Text = m.Message.ExtendedText.Text
	case m.Message.Image.Caption != "":
		m.Text = m.Message.Image.Caption
	}
}

func (c *Client) SendText(ctx context.Context, instance, groupJID, text string, mentions []string) error {
	body := map[string]any{"number": groupJID, "text": text}
	if len(mentions) > 0 {
		body["mentioned"] = mentions
	}
	return c.do(ctx, http.MethodPost, "/message/sendText/"+instance, nil, body, nil)
}

func (c *Client) UpdateGroupSubject(ctx context.Context, instance, groupJID, subject string) error {
	return c.do(ctx, http.MethodPost, "/group/updateGroupSubject/"+instance,
		url.Values{"groupJid": {groupJID}}, map[string]any{"subject": subject}, nil)
}

func (c *Client) UpdateGroupDescription(ctx context.Context, instance, groupJID, description string) error {
	return c.do(ctx, http.MethodPost, "/group/updateGroupDescription/"+instance,
		url.Values{"groupJid": {groupJID}}, map[string]any{"description": description}, nil)
}

func (c *Client) UpdateGroupPicture(ctx context.Context, instance, groupJID, imageBase64 string) error {
	return c.do(ctx, http.MethodPost, "/group/updateGroupPicture/"+instance,
		url.Values{"groupJid": {groupJID}}, map[string]any{"image": imageBase64}, nil)
}

// UpdateGroupSetting flips who may send: "announcement" closes the group
// to admins only, "not_announcement" reopens it.
func (c *Client) UpdateGroupSetting(ctx context.Context, instance, groupJID, action string) error {
	return c.do(ctx, http.MethodPost, "/group/updateSetting/"+instance,
		url.Values{"groupJid": {groupJID}}, map[string]any{"action": action}, nil)
}

func (c *Client) Participants(ctx context.Context, instance, groupJID string) ([]string, error) {
	var out struct {
		Participants []struct {
			JID string `json:"jid"`
		} `json:"participants"`
	}
	err := c.do(ctx, http.MethodGet, "/group/participants/"+instance,
		url.Values{"groupJid": {groupJID}}, nil, &out)
	if err != nil {
		return nil, err
	}
	jids := make([]string, 0, len(out.Participants))
	for _, p := range out.Participants {
		jids = append(jids, p.JID)
	}
	return jids, nil
}

func (c *Client) RecentMessages(ctx context.Context, instance, groupJID string, limit int) ([]ChatMessage, error) {
	var out struct {
		Messages []ChatMessage `json:"messages"`
	}
	err := c.do(ctx, http.MethodGet, "/chat/fetchMessages/"+instance,
		url.Values{"groupJid": {groupJID}, "limit": {strconv.Itoa(limit)}}, nil, &out)
	if err != nil {
		return nil, err
	}
	for i := range out.Messages {
		out.Messages[i].extractText()
	}
	return out.Messages, nil
}

// SessionIdentity returns the jid the instance is logged in as, used to
// skip self-authored messages when scanning history.
func (c *Client) SessionIdentity(ctx context.Context, instance string) (string, error) {
	var out struct {
		JID string `json:"jid"`
	}
	err := c.do(ctx, http.MethodGet, "/instance/me/"+instance, nil, nil, &out)
	if err != nil {
		return "", err
	}
	return out.JID, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	endpoint := c.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("apikey", c.APIKey)

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("gateway %s: %w", path, err)
	}
	defer resp.Body.Close()
	observability.GatewayLatency.Observe(time.Since(start).Seconds())

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &CallError{StatusCode: resp.StatusCode, Body: raw}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("gateway %s: decode: %w", path, err)
		}
	}
	return nil
}
