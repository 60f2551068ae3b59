package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/openvtt/battlemap/pkg/api/middleware"
	"github.com/openvtt/battlemap/pkg/battlefield"
	"github.com/openvtt/battlemap/pkg/log"
	"github.com/openvtt/battlemap/pkg/repositories"
	"github.com/openvtt/battlemap/pkg/types"
)

// HandleGetBattlefield returns the current battlefield. It never 404s:
// the store lazily creates a default battlefield when none exists.
func HandleGetBattlefield(store *battlefield.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := middleware.ActorFromContext(r.Context()); !ok {
			log.Error("failed to get actor from context")
			http.Error(w, "Failed to get actor from context", http.StatusInternalServerError)
			return
		}

		current, err := store.GetCurrent(r.Context())
		if err != nil {
			log.Error("failed to get current battlefield: %v", err)
			http.Error(w, "Failed to get current battlefield", http.StatusInternalServerError)
			return
		}

		writeJSON(w, current)
	}
}

// CreateBattlefieldRequest is the body for POST /battlefield.
type CreateBattlefieldRequest struct {
	Name        string `json:"name"`
	MapImageURL string `json:"mapImageUrl"`
	GridSize    int    `json:"gridSize"`
	GridWidth   int    `json:"gridWidth"`
	GridHeight  int    `json:"gridHeight"`
}

// HandleCreateBattlefield creates a new active battlefield, deactivating
// every other one. DM only.
func HandleCreateBattlefield(store *battlefield.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			log.Error("failed to get actor from context")
			http.Error(w, "Failed to get actor from context", http.StatusInternalServerError)
			return
		}

		req := &CreateBattlefieldRequest{}
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			http.Error(w, "Failed to decode request body", http.StatusBadRequest)
			return
		}

		created, err := store.Create(r.Context(), actor, battlefield.CreateParams{
			Name:        req.Name,
			MapImageURL: req.MapImageURL,
			GridSize:    req.GridSize,
			GridWidth:   req.GridWidth,
			GridHeight:  req.GridHeight,
		})
		if err != nil {
			writeStoreError(w, "failed to create battlefield", err)
			return
		}

		writeJSON(w, created)
	}
}

// UpdateBattlefieldRequest is the body for PATCH /battlefield: the
// battlefield ID plus any subset of the patchable fields.
type UpdateBattlefieldRequest struct {
	ID string `json:"id"`
	types.Patch
}

func HandleUpdateBattlefield(store *battlefield.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			log.Error("failed to get actor from context")
			http.Error(w, "Failed to get actor from context", http.StatusInternalServerError)
			return
		}

		req := &UpdateBattlefieldRequest{}
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			http.Error(w, "Failed to decode request body", http.StatusBadRequest)
			return
		}
		if req.ID == "" {
			http.Error(w, "Missing battlefield id", http.StatusBadRequest)
			return
		}

		updated, err := store.ApplyUpdate(r.Context(), req.ID, actor, req.Patch)
		if err != nil {
			writeStoreError(w, "failed to update battlefield", err)
			return
		}

		writeJSON(w, updated)
	}
}

// HandleListCharacters lists all characters for the DM and the actor's
// own characters for players. Read-only; character provisioning lives
// elsewhere.
func HandleListCharacters(repository repositories.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			log.Error("failed to get actor from context")
			http.Error(w, "Failed to get actor from context", http.StatusInternalServerError)
			return
		}

		userID := actor.UserID
		if actor.IsDM() {
			userID = ""
		}

		characters, err := repository.ListCharacters(r.Context(), userID)
		if err != nil {
			log.Error("failed to list characters: %v", err)
			http.Error(w, "Failed to list characters", http.StatusInternalServerError)
			return
		}
		if characters == nil {
			characters = []types.Character{}
		}

		writeJSON(w, characters)
	}
}

func writeStoreError(w http.ResponseWriter, msg string, err error) {
	switch {
	case battlefield.IsPermissionDenied(err):
		http.Error(w, err.Error(), http.StatusForbidden)
	case battlefield.IsValidation(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case repositories.IsNotFound(err):
		http.Error(w, "Battlefield not found", http.StatusNotFound)
	default:
		log.Error("%s: %v", msg, err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response: %v", err)
	}
}
