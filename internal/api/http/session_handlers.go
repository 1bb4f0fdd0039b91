package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/genem/simulado/internal/simulado"
	"github.com/genem/simulado/internal/topicfilter"
)

func SnapshotHandler(ctl *simulado.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, ctl.Snapshot())
	}
}

// GenerateHandler starts a simulado. With use_topic_filter and no explicit
// topic ids, the current topic filter selection is resolved first.
func GenerateHandler(ctl *simulado.Controller, topics *topicfilter.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			simulado.Config
			UseTopicFilter bool `json:"use_topic_filter"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		cfg := req.Config
		if req.UseTopicFilter && len(cfg.TopicIDs) == 0 && topics != nil {
			ids, err := topics.Resolve(r.Context())
			if err != nil {
				respondError(w, err)
				return
			}
			cfg.TopicIDs = ids
		}
		snap, err := ctl.Generate(r.Context(), cfg)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, snap)
	}
}

func AnswerHandler(ctl *simulado.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Alternative *int `json:"alternative"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Alternative == nil {
			http.Error(w, "alternative required", http.StatusBadRequest)
			return
		}
		if err := ctl.SelectAnswer(r.Context(), chi.URLParam(r, "questionID"), *req.Alternative); err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, ctl.Snapshot())
	}
}

func FinishHandler(ctl *simulado.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		details, err := ctl.Finish(r.Context())
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, details)
	}
}

func RestartHandler(ctl *simulado.Controller) http.HandlerFunc {
	return snapshotAction(ctl.Restart)
}

func ResumeHandler(ctl *simulado.Controller) http.HandlerFunc {
	return snapshotAction(ctl.Resume)
}

func NewSimuladoHandler(ctl *simulado.Controller) http.HandlerFunc {
	return navAction(ctl, ctl.NewSimulado)
}

// NavigateHandler moves between the screens that carry no payload.
func NavigateHandler(ctl *simulado.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var move func(context.Context) error
		switch simulado.Phase(chi.URLParam(r, "phase")) {
		case simulado.PhaseHistory:
			move = ctl.ViewHistory
		case simulado.PhaseProfile:
			move = ctl.ShowProfile
		case simulado.PhaseBuilder:
			move = ctl.BackToBuilder
		default:
			http.Error(w, "unknown phase", http.StatusNotFound)
			return
		}
		navAction(ctl, move)(w, r)
	}
}

func BackFromHistoryExamHandler(ctl *simulado.Controller) http.HandlerFunc {
	return navAction(ctl, ctl.BackFromHistoryExam)
}

func snapshotAction(fn func(context.Context) (simulado.Snapshot, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := fn(r.Context())
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, snap)
	}
}

func navAction(ctl *simulado.Controller, fn func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(r.Context()); err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, ctl.Snapshot())
	}
}
