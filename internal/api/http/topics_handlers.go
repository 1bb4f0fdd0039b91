package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/genem/simulado/internal/topicfilter"
)

type topicIDs struct {
	TopicIDs []string `json:"topic_ids"`
	Selected int      `json:"selected"`
}

// MountTopics serves the cascading topic filter:
//
//	GET  /fields
//	GET  /fields/{field}/areas
//	GET  /fields/{field}/areas/{area}/general
//	GET  /fields/{field}/areas/{area}/general/{general}/specific
//	POST /toggle   {"field","area","general","specific","checked"}
//	POST /clear
//	GET  /resolve
func MountTopics(r chi.Router, agg *topicfilter.Aggregator) {
	r.Get("/fields", func(w http.ResponseWriter, r *http.Request) {
		nodes, err := agg.LoadFields(r.Context())
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, nodes)
	})

	r.Get("/fields/{field}/areas", func(w http.ResponseWriter, r *http.Request) {
		nodes, err := agg.ExpandField(r.Context(), chi.URLParam(r, "field"))
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, nodes)
	})

	r.Get("/fields/{field}/areas/{area}/general", func(w http.ResponseWriter, r *http.Request) {
		nodes, err := agg.ExpandArea(r.Context(), chi.URLParam(r, "field"), chi.URLParam(r, "area"))
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, nodes)
	})

	r.Get("/fields/{field}/areas/{area}/general/{general}/specific", func(w http.ResponseWriter, r *http.Request) {
		names, err := agg.ExpandGeneralTopic(r.Context(),
			chi.URLParam(r, "field"), chi.URLParam(r, "area"), chi.URLParam(r, "general"))
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, names)
	})

	r.Post("/toggle", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Field    string `json:"field"`
			Area     string `json:"area"`
			General  string `json:"general"`
			Specific string `json:"specific"`
			Checked  bool   `json:"checked"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Field == "" {
			http.Error(w, "field required", http.StatusBadRequest)
			return
		}
		var (
			ids []string
			err error
		)
		ctx := r.Context()
		switch {
		case req.Specific != "":
			if req.Area == "" || req.General == "" {
				http.Error(w, "area and general required", http.StatusBadRequest)
				return
			}
			ids, err = agg.ToggleSpecificTopic(ctx, req.Field, req.Area, req.General, req.Specific, req.Checked)
		case req.General != "":
			if req.Area == "" {
				http.Error(w, "area required", http.StatusBadRequest)
				return
			}
			ids, err = agg.ToggleGeneralTopic(ctx, req.Field, req.Area, req.General, req.Checked)
		case req.Area != "":
			ids, err = agg.ToggleArea(ctx, req.Field, req.Area, req.Checked)
		default:
			ids, err = agg.ToggleField(ctx, req.Field, req.Checked)
		}
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, topicIDs{TopicIDs: ids, Selected: agg.SelectedCount()})
	})

	r.Post("/clear", func(w http.ResponseWriter, r *http.Request) {
		agg.Clear()
		respondJSON(w, http.StatusOK, topicIDs{TopicIDs: []string{}})
	})

	r.Get("/resolve", func(w http.ResponseWriter, r *http.Request) {
		ids, err := agg.Resolve(r.Context())
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, topicIDs{TopicIDs: ids, Selected: agg.SelectedCount()})
	})
}
