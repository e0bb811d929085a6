package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// CallError is a non-2xx response from the bridge, raw body preserved
// for the dispatch log.
type CallError struct {
	StatusCode int
	Body       []byte
}

func (e *CallError) Error() string {
	if msg := e.message(); msg != "" {
		return fmt.Sprintf("gateway %d: %s", e.StatusCode, msg)
	}
	return fmt.Sprintf("gateway %d", e.StatusCode)
}

func (e *CallError) message() string {
	var out struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(e.Body, &out) == nil {
		if out.Message != "" {
			return out.Message
		}
		return out.Error
	}
	return ""
}

// Reason maps a gateway failure to the user-facing text shown in job
// error lists. Classification is best effort; anything unrecognized
// falls through to a generic reason with the upstream message attached.
func Reason(err error) string {
	var ce *CallError
	if errors.As(err, &ce) {
		switch ce.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return "você não é admin deste grupo"
		case http.StatusNotFound:
			return "grupo não encontrado"
		}
		if msg := ce.message(); msg != "" {
			return "erro ao executar a ação: " + msg
		}
		return "erro ao executar a ação"
	}
	return "erro ao executar a ação: " + err.Error()
}
