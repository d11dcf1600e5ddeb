// Package manual implements the Manual Trigger (C10) as a reference
// HTTP surface that triggers a workflow by id over the wire through
// the engine's Execute.
package manual

import (
	"encoding/json"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"

	"github.com/flowforge/enginecore/internal/engine"
)

// Engine is the subset of *engine.Engine the HTTP surface needs.
type Engine interface {
	Execute(workflowID string, input map[string]interface{}) (*engine.Execution, error)
}

// Handler exposes POST /workflows/{id}/execute as a manual trigger.
type Handler struct {
	engine    Engine
	jwtSecret []byte
}

// NewHandler builds a Handler. jwtSecret may be nil to disable the
// bearer-token check (local/dev use).
func NewHandler(eng Engine, jwtSecret []byte) *Handler {
	return &Handler{engine: eng, jwtSecret: jwtSecret}
}

// Register mounts the manual-trigger routes on r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/workflows/{id}/execute", h.execute).Methods(http.MethodPost)
}

func (h *Handler) execute(w http.ResponseWriter, r *http.Request) {
	if h.jwtSecret != nil && !h.checkBearer(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	workflowID := mux.Vars(r)["id"]

	var input map[string]interface{}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}
	if input == nil {
		input = map[string]interface{}{}
	}
	input["triggerType"] = "manual"

	exec, err := h.engine.Execute(workflowID, input)
	if err != nil {
		if _, ok := err.(*engine.WorkflowNotFoundError); ok {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(exec)
}

func (h *Handler) checkBearer(r *http.Request) bool {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return false
	}
	tokenStr := header[len(prefix):]

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		return h.jwtSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	return err == nil && token.Valid
}
