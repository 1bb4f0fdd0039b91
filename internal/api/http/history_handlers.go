package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/genem/simulado/internal/examapi"
	"github.com/genem/simulado/internal/simulado"
)

// ListExamsHandler pages through the user's exams. skip and limit are only
// forwarded when present.
func ListExamsHandler(ctl *simulado.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var opts examapi.ListOptions
		if v := q.Get("skip"); v != "" {
			n := parseIntDefault(v, 0)
			opts.Skip = &n
		}
		if v := q.Get("limit"); v != "" {
			n := parseIntDefault(v, 50)
			opts.Limit = &n
		}
		opts.Status = strings.TrimSpace(q.Get("status"))
		opts.CreatedAfter = q.Get("created_after")
		opts.CreatedBefore = q.Get("created_before")

		page, err := ctl.ListExams(r.Context(), opts)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, page)
	}
}

func TotalizersHandler(ctl *simulado.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := ctl.Totalizers(r.Context())
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, t)
	}
}

func OpenHistoryExamHandler(ctl *simulado.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := ctl.OpenHistoryExam(r.Context(), chi.URLParam(r, "examID"))
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, snap)
	}
}

func ReplicateHandler(ctl *simulado.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := ctl.Replicate(r.Context(), chi.URLParam(r, "examID"))
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, snap)
	}
}

func DeleteExamHandler(ctl *simulado.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := ctl.DeleteExam(r.Context(), chi.URLParam(r, "examID"))
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, res)
	}
}
