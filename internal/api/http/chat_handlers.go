package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/genem/simulado/internal/chat"
)

// MountChat serves the per-question assistant sessions under
// /{questionID}.
func MountChat(r chi.Router, cache *chat.Cache) {
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, cache.Sessions())
	})

	r.Post("/{questionID}", func(w http.ResponseWriter, r *http.Request) {
		s, err := cache.Open(r.Context(), chi.URLParam(r, "questionID"))
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, s)
	})

	r.Get("/{questionID}", func(w http.ResponseWriter, r *http.Request) {
		s, ok := cache.Session(chi.URLParam(r, "questionID"))
		if !ok {
			respondError(w, chat.ErrNoSession)
			return
		}
		respondJSON(w, http.StatusOK, s)
	})

	r.Post("/{questionID}/messages", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Message string `json:"message"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		msg, err := cache.Send(r.Context(), chi.URLParam(r, "questionID"), req.Message)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, msg)
	})

	r.Post("/{questionID}/close", func(w http.ResponseWriter, r *http.Request) {
		cache.Close(chi.URLParam(r, "questionID"))
		w.WriteHeader(http.StatusNoContent)
	})

	r.Delete("/{questionID}", func(w http.ResponseWriter, r *http.Request) {
		cache.Delete(chi.URLParam(r, "questionID"))
		w.WriteHeader(http.StatusNoContent)
	})
}
