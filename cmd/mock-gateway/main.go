// mock-gateway is an in-memory stand-in for the WhatsApp bridge API,
// used in local development and manual testing of the dispatcher and
// scheduler. Failure injection is driven by env knobs so partial-success
// paths can be exercised without a real bridge.
package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/kelseyhightower/envconfig"

	"zapmark/internal/logging"
)

type config struct {
	Port   string `envconfig:"PORT" default:"8081"`
	APIKey string `envconfig:"GATEWAY_API_KEY" default:"mock_key"`

	// Comma-separated group jids that always fail.
	ForbiddenGroups string `envconfig:"MOCK_FORBIDDEN_GROUPS" default:""`
	MissingGroups   string `envconfig:"MOCK_MISSING_GROUPS" default:""`
	DelayMs         int    `envconfig:"MOCK_DELAY_MS" default:"0"`

	// Seed groups as "jid=name" pairs, comma separated.
	Groups string `envconfig:"MOCK_GROUPS" default:"g1@g.us=Ofertas 01,g2@g.us=Ofertas 02"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
}

type sentMessage struct {
	Instance  string    `json:"instance"`
	GroupJID  string    `json:"groupJid"`
	Text      string    `json:"text"`
	Mentions  []string  `json:"mentions,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type seededMessage struct {
	SenderJID string `json:"senderJid"`
	FromMe    bool   `json:"fromMe"`
	Text      string `json:"text"`
}

type server struct {
	cfg config

	mu           sync.Mutex
	sent         []sentMessage
	history      map[string][]seededMessage // groupJid -> messages
	groups       map[string]string          // jid -> name
	participants map[string][]string
	forbidden    map[string]bool
	missing      map[string]bool
}

func main() {
	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	logging.Init("mock-gateway", cfg.LogFormat)

	s := &server{
		cfg:          cfg,
		history:      map[string][]seededMessage{},
		groups:       map[string]string{},
		participants: map[string][]string{},
		forbidden:    csvSet(cfg.ForbiddenGroups),
		missing:      csvSet(cfg.MissingGroups),
	}
	for _, pair := range strings.Split(cfg.Groups, ",") {
		jid, name, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || jid == "" {
			continue
		}
		s.groups[jid] = name
		s.participants[jid] = []string{"5511999990001@s.whatsapp.net", "5511999990002@s.whatsapp.net"}
	}

	r := mux.NewRouter()
	r.Use(s.auth)
	r.HandleFunc("/message/sendText/{instance}", s.handleSendText).Methods(http.MethodPost)
	r.HandleFunc("/group/updateGroupSubject/{instance}", s.handleGroupUpdate).Methods(http.MethodPost)
	r.HandleFunc("/group/updateGroupDescription/{instance}", s.handleGroupUpdate).Methods(http.MethodPost)
	r.HandleFunc("/group/updateGroupPicture/{instance}", s.handleGroupUpdate).Methods(http.MethodPost)
	r.HandleFunc("/group/updateSetting/{instance}", s.handleGroupUpdate).Methods(http.MethodPost)
	r.HandleFunc("/group/participants/{instance}", s.handleParticipants).Methods(http.MethodGet)
	r.HandleFunc("/chat/fetchMessages/{instance}", s.handleFetchMessages).Methods(http.MethodGet)
	r.HandleFunc("/instance/me/{instance}", s.handleIdentity).Methods(http.MethodGet)

	// Inspection/seeding endpoints for manual tests.
	r.HandleFunc("/admin/sent", s.handleAdminSent).Methods(http.MethodGet)
	r.HandleFunc("/admin/seed-history", s.handleSeedHistory).Methods(http.MethodPost)

	slog.Info("mock gateway listening", "port", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		slog.Error("mock gateway failed", "err", err)
		os.Exit(1)
	}
}

func (s *server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/admin/") {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("apikey") != s.cfg.APIKey {
			writeErr(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		if s.cfg.DelayMs > 0 {
			time.Sleep(time.Duration(s.cfg.DelayMs) * time.Millisecond)
		}
		next.ServeHTTP(w, r)
	})
}

// groupGate applies the configured failure injection for one group.
func (s *server) groupGate(w http.ResponseWriter, jid string) bool {
	if s.missing[jid] {
		writeErr(w, http.StatusNotFound, "group not found")
		return false
	}
	if s.forbidden[jid] {
		writeErr(w, http.StatusForbidden, "not a group admin")
		return false
	}
	if _, ok := s.groups[jid]; !ok {
		writeErr(w, http.StatusNotFound, "group not found")
		return false
	}
	return true
}

func (s *server) handleSendText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Number    string   `json:"number"`
		Text      string   `json:"text"`
		Mentioned []string `json:"mentioned"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if !s.groupGate(w, req.Number) {
		return
	}

	s.mu.Lock()
	s.sent = append(s.sent, sentMessage{
		Instance:  mux.Vars(r)["instance"],
		GroupJID:  req.Number,
		Text:      req.Text,
		Mentions:  req.Mentioned,
		CreatedAt: time.Now().UTC(),
	})
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]string{"id": "mock-" + strconv.Itoa(len(s.sent))})
}

func (s *server) handleGroupUpdate(w http.ResponseWriter, r *http.Request) {
	jid := r.URL.Query().Get("groupJid")
	if jid == "" {
		writeErr(w, http.StatusBadRequest, "missing groupJid")
		return
	}
	if !s.groupGate(w, jid) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *server) handleParticipants(w http.ResponseWriter, r *http.Request) {
	jid := r.URL.Query().Get("groupJid")
	if !s.groupGate(w, jid) {
		return
	}
	type participant struct {
		JID string `json:"jid"`
	}
	var out []participant
	for _, p := range s.participants[jid] {
		out = append(out, participant{JID: p})
	}
	writeJSON(w, http.StatusOK, map[string]any{"participants": out})
}

func (s *server) handleFetchMessages(w http.ResponseWriter, r *http.Request) {
	jid := r.URL.Query().Get("groupJid")
	if !s.groupGate(w, jid) {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	seeded := s.history[jid]
	s.mu.Unlock()

	type wireMessage struct {
		ID        string `json:"id"`
		SenderJID string `json:"senderJid"`
		FromMe    bool   `json:"fromMe"`
		Message   struct {
			Conversation string `json:"conversation"`
		} `json:"message"`
	}
	var out []wireMessage
	for i, m := range seeded {
		if i >= limit {
			break
		}
		wm := wireMessage{ID: "hist-" + strconv.Itoa(i), SenderJID: m.SenderJID, FromMe: m.FromMe}
		wm.Message.Conversation = m.Text
		out = append(out, wm)
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": out})
}

func (s *server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"jid": mux.Vars(r)["instance"] + "@s.whatsapp.net",
	})
}

func (s *server) handleAdminSent(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.sent)
}

func (s *server) handleSeedHistory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GroupJID string          `json:"groupJid"`
		Messages []seededMessage `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GroupJID == "" {
		writeErr(w, http.StatusBadRequest, "invalid seed payload")
		return
	}
	s.mu.Lock()
	s.history[req.GroupJID] = req.Messages
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func csvSet(raw string) map[string]bool {
	out := map[string]bool{}
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out[v] = true
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
