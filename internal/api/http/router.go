// internal/api/http/router.go
package http

import (
	"github.com/go-chi/chi/v5"

	"github.com/genem/simulado/internal/auth"
	"github.com/genem/simulado/internal/chat"
	"github.com/genem/simulado/internal/simulado"
	"github.com/genem/simulado/internal/topicfilter"
)

// Deps are the engine parts the gateway exposes. Topics, Chat and Auth are
// optional; their routes are skipped when nil.
type Deps struct {
	Session *simulado.Controller
	Topics  *topicfilter.Aggregator
	Chat    *chat.Cache
	Auth    *auth.Service
	// UserID, when set, is the user session, history and chat routes act
	// for; a bearer token of anyone else is refused there.
	UserID func() string
}

// Mount registers the gateway routes on r.
func Mount(r chi.Router, d Deps) {
	ctl := d.Session
	owner := func(r chi.Router) {
		if d.UserID != nil {
			r.Use(auth.RequireSubject(d.UserID))
		}
	}

	r.Route("/session", func(sr chi.Router) {
		owner(sr)
		sr.Get("/", SnapshotHandler(ctl))
		sr.Post("/generate", GenerateHandler(ctl, d.Topics))
		sr.Put("/answers/{questionID}", AnswerHandler(ctl))
		sr.Post("/finish", FinishHandler(ctl))
		sr.Post("/restart", RestartHandler(ctl))
		sr.Post("/resume", ResumeHandler(ctl))
		sr.Post("/new", NewSimuladoHandler(ctl))
		sr.Post("/navigate/{phase}", NavigateHandler(ctl))
		sr.Post("/back", BackFromHistoryExamHandler(ctl))
	})

	r.Route("/history", func(hr chi.Router) {
		owner(hr)
		hr.Get("/", ListExamsHandler(ctl))
		hr.Get("/totalizers", TotalizersHandler(ctl))
		hr.Post("/{examID}/open", OpenHistoryExamHandler(ctl))
		hr.Post("/{examID}/replicate", ReplicateHandler(ctl))
		hr.Delete("/{examID}", DeleteExamHandler(ctl))
	})

	if d.Topics != nil {
		r.Route("/topics", func(tr chi.Router) { MountTopics(tr, d.Topics) })
	}
	if d.Chat != nil {
		r.Route("/chat", func(cr chi.Router) {
			owner(cr)
			MountChat(cr, d.Chat)
		})
	}
	if d.Auth != nil {
		r.Route("/auth", func(ar chi.Router) {
			ar.Post("/register", RegisterHandler(d.Auth))
			ar.Post("/login", LoginHandler(d.Auth))
			ar.Post("/logout", LogoutHandler(d.Auth))
			ar.Get("/me", MeHandler(d.Auth))
			ar.Put("/me", UpdateMeHandler(d.Auth))
		})
	}
}
