package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/genem/simulado/internal/auth"
	"github.com/genem/simulado/internal/chat"
	"github.com/genem/simulado/internal/examapi"
	"github.com/genem/simulado/internal/examapi/examapitest"
	"github.com/genem/simulado/internal/simulado"
	"github.com/genem/simulado/internal/state"
	"github.com/genem/simulado/internal/topicfilter"
)

var topics = []examapi.QuestionTopic{
	{ID: "t1", Field: "Natureza", FieldCode: "CN", Area: "Física", AreaCode: "FIS", GeneralTopic: "Energia", GeneralTopicCode: "EN", SpecificTopic: "Trabalho"},
	{ID: "t2", Field: "Natureza", FieldCode: "CN", Area: "Física", AreaCode: "FIS", GeneralTopic: "Ondas", GeneralTopicCode: "ON", SpecificTopic: "Som"},
	{ID: "t3", Field: "Matemática", FieldCode: "MT", Area: "Álgebra", AreaCode: "ALG", GeneralTopic: "Funções", GeneralTopicCode: "FN", SpecificTopic: "Afim"},
}

type gateway struct {
	*httptest.Server
	exams *examapitest.Server
	ctl   *simulado.Controller
}

func newGateway(t *testing.T) *gateway {
	t.Helper()
	exams := examapitest.New(30, topics)
	t.Cleanup(exams.Close)

	ctx := context.Background()
	st := state.NewMemoryStore()
	tokens, err := auth.NewTokenStore(ctx, st, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(tokens.Close)

	client := examapi.New(examapi.Config{BaseURL: exams.URL, TokenSource: tokens})
	ctl, err := simulado.New(ctx, client, st, simulado.Options{
		UserID:        func() string { return "u1" },
		SubmitTimeout: time.Second,
		TickInterval:  time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(ctl.Close)

	r := chi.NewRouter()
	r.Use(auth.Middleware(auth.NewVerifier("")))
	r.Route("/api", func(ar chi.Router) {
		Mount(ar, Deps{
			Session: ctl,
			Topics:  topicfilter.New(client, nil),
			Chat:    chat.NewCache(client, func() string { return "u1" }),
			UserID:  func() string { return "u1" },
			// the user service is never reached in these tests
			Auth: auth.NewService(auth.NewClient("http://127.0.0.1:1", time.Second, tokens), tokens),
		})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &gateway{Server: srv, exams: exams, ctl: ctl}
}

func (g *gateway) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	return g.doAs(t, "", method, path, body, out)
}

// doAs sends a bearer token for sub when sub is not empty.
func (g *gateway) doAs(t *testing.T, sub, method, path string, body any, out any) int {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, g.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if sub != "" {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &auth.Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: sub, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		}).SignedString([]byte("any"))
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if out != nil && res.StatusCode < 300 && res.StatusCode != http.StatusNoContent {
		// start from zero so maps from an earlier response do not leak in
		v := reflect.ValueOf(out).Elem()
		v.Set(reflect.Zero(v.Type()))
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return res.StatusCode
}

func TestSessionFlowOverHTTP(t *testing.T) {
	g := newGateway(t)

	var snap simulado.Snapshot
	if code := g.do(t, "GET", "/api/session/", nil, &snap); code != 200 || snap.Phase != simulado.PhaseBuilder {
		t.Fatalf("initial: code=%d phase=%s", code, snap.Phase)
	}
	if code := g.do(t, "POST", "/api/session/finish", nil, nil); code != http.StatusConflict {
		t.Fatalf("finish from builder = %d, want 409", code)
	}
	if code := g.do(t, "POST", "/api/session/generate", simulado.Config{TotalQuestions: 0, TimeLimit: 10}, nil); code != http.StatusBadRequest {
		t.Fatalf("invalid config = %d, want 400", code)
	}

	code := g.do(t, "POST", "/api/session/generate", simulado.Config{Description: "d", TotalQuestions: 5, TimeLimit: 10}, &snap)
	if code != http.StatusCreated || len(snap.Questions) != 5 || snap.Phase != simulado.PhaseSimulado {
		t.Fatalf("generate: code=%d n=%d phase=%s", code, len(snap.Questions), snap.Phase)
	}

	qid := snap.Questions[0].ID
	if code := g.do(t, "PUT", "/api/session/answers/"+qid, map[string]int{"alternative": 9}, nil); code != http.StatusBadRequest {
		t.Fatalf("out of range answer = %d", code)
	}
	if code := g.do(t, "PUT", "/api/session/answers/nope", map[string]int{"alternative": 0}, nil); code != http.StatusBadRequest {
		t.Fatalf("unknown question = %d", code)
	}
	if code := g.do(t, "PUT", "/api/session/answers/"+qid, map[string]int{"alternative": 2}, &snap); code != 200 || snap.Answers[qid] != 2 {
		t.Fatalf("answer: code=%d answers=%v", code, snap.Answers)
	}

	var details examapi.ExamDetails
	if code := g.do(t, "POST", "/api/session/finish", nil, &details); code != 200 || details.TotalQuestions != 5 {
		t.Fatalf("finish: code=%d details=%+v", code, details)
	}
	if got := g.exams.Answer(details.ID, qid); got != "C" {
		t.Fatalf("server answer for %s = %q, want C", qid, got)
	}

	if code := g.do(t, "POST", "/api/session/restart", nil, &snap); code != 200 || len(snap.Answers) != 0 || snap.Phase != simulado.PhaseSimulado {
		t.Fatalf("restart: code=%d %+v", code, snap)
	}
	if code := g.do(t, "POST", "/api/session/new", nil, &snap); code != 200 || snap.Phase != simulado.PhaseBuilder || len(snap.Questions) != 0 {
		t.Fatalf("new: code=%d %+v", code, snap)
	}
	if code := g.do(t, "POST", "/api/session/navigate/nowhere", nil, nil); code != http.StatusNotFound {
		t.Fatalf("unknown phase = %d", code)
	}
	if code := g.do(t, "POST", "/api/session/navigate/history", nil, &snap); code != 200 || snap.Phase != simulado.PhaseHistory {
		t.Fatalf("history: code=%d phase=%s", code, snap.Phase)
	}
}

func TestHistoryOverHTTP(t *testing.T) {
	g := newGateway(t)
	id := g.exams.Seed("u1", examapi.StatusFinished, []string{"q1", "q2"}, map[string]string{"q1": "A", "q2": "E"})

	var page examapi.UserExamsPage
	if code := g.do(t, "GET", "/api/history/?limit=10", nil, &page); code != 200 || len(page.Exams) != 1 {
		t.Fatalf("list: code=%d page=%+v", code, page)
	}
	var snap simulado.Snapshot
	if code := g.do(t, "POST", "/api/history/"+id+"/open", nil, &snap); code != 200 || snap.Phase != simulado.PhaseViewHistoryExam {
		t.Fatalf("open: code=%d phase=%s", code, snap.Phase)
	}
	if code := g.do(t, "POST", "/api/session/back", nil, &snap); code != 200 || snap.Phase != simulado.PhaseHistory {
		t.Fatalf("back: code=%d phase=%s", code, snap.Phase)
	}
	if code := g.do(t, "POST", "/api/history/"+id+"/replicate", nil, &snap); code != http.StatusCreated || len(snap.Questions) != 2 {
		t.Fatalf("replicate: code=%d n=%d", code, len(snap.Questions))
	}
	if code := g.do(t, "DELETE", "/api/history/missing", nil, nil); code != http.StatusNotFound {
		t.Fatalf("delete missing = %d, want 404", code)
	}
}

func TestTopicFilterFeedsGenerate(t *testing.T) {
	g := newGateway(t)

	var fields []topicfilter.Node
	if code := g.do(t, "GET", "/api/topics/fields", nil, &fields); code != 200 || len(fields) != 2 {
		t.Fatalf("fields: code=%d %+v", code, fields)
	}
	var areas []topicfilter.Node
	if code := g.do(t, "GET", "/api/topics/fields/CN/areas", nil, &areas); code != 200 || len(areas) != 1 || areas[0].Code != "FIS" {
		t.Fatalf("areas: code=%d %+v", code, areas)
	}

	var sel topicIDs
	if code := g.do(t, "POST", "/api/topics/toggle", map[string]any{"field": "CN", "area": "FIS", "checked": true}, &sel); code != 200 {
		t.Fatalf("toggle: code=%d", code)
	}
	if !reflect.DeepEqual(sel.TopicIDs, []string{"t1", "t2"}) || sel.Selected != 1 {
		t.Fatalf("selection = %+v", sel)
	}
	if code := g.do(t, "POST", "/api/topics/toggle", map[string]any{"field": "CN", "specific": "Som", "checked": true}, nil); code != http.StatusBadRequest {
		t.Fatalf("specific without parents = %d", code)
	}

	body := map[string]any{"description": "d", "totalQuestions": 2, "timeLimit": 5, "use_topic_filter": true}
	if code := g.do(t, "POST", "/api/session/generate", body, nil); code != http.StatusCreated {
		t.Fatalf("generate: code=%d", code)
	}
	var got []string
	g.exams.Snapshot(func(s *examapitest.Server) {
		got = s.CreateRequests[len(s.CreateRequests)-1].Topics
	})
	if !reflect.DeepEqual(got, []string{"t1", "t2"}) {
		t.Fatalf("create topics = %v", got)
	}

	if code := g.do(t, "POST", "/api/topics/clear", nil, &sel); code != 200 || len(sel.TopicIDs) != 0 {
		t.Fatalf("clear: code=%d %+v", code, sel)
	}
}

func TestChatOverHTTP(t *testing.T) {
	g := newGateway(t)

	if code := g.do(t, "POST", "/api/chat/q1/messages", map[string]string{"message": "hi"}, nil); code != http.StatusNotFound {
		t.Fatalf("send without session = %d", code)
	}
	var s chat.Session
	if code := g.do(t, "POST", "/api/chat/q1", nil, &s); code != 200 || !s.Active || len(s.Messages) != 1 {
		t.Fatalf("open: code=%d %+v", code, s)
	}
	if code := g.do(t, "POST", "/api/chat/q1/messages", map[string]string{"message": "  "}, nil); code != http.StatusBadRequest {
		t.Fatalf("empty message = %d", code)
	}
	var reply chat.Message
	if code := g.do(t, "POST", "/api/chat/q1/messages", map[string]string{"message": "why?"}, &reply); code != 200 || reply.Content != "echo: why?" {
		t.Fatalf("send: code=%d %+v", code, reply)
	}
	if code := g.do(t, "POST", "/api/chat/q1/close", nil, nil); code != http.StatusNoContent {
		t.Fatalf("close = %d", code)
	}
	if code := g.do(t, "GET", "/api/chat/q1", nil, &s); code != 200 || s.Active || len(s.Messages) != 3 {
		t.Fatalf("closed session: code=%d %+v", code, s)
	}
	if code := g.do(t, "DELETE", "/api/chat/q1", nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete = %d", code)
	}
	if code := g.do(t, "GET", "/api/chat/q1", nil, nil); code != http.StatusNotFound {
		t.Fatalf("deleted session = %d", code)
	}
}

func TestAuthValidationOverHTTP(t *testing.T) {
	g := newGateway(t)

	if code := g.do(t, "GET", "/api/auth/me", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("me without token = %d", code)
	}
	if code := g.do(t, "POST", "/api/auth/login", map[string]string{"email": "a@b.c"}, nil); code != http.StatusBadRequest {
		t.Fatalf("login without password = %d", code)
	}
	reg := map[string]string{"email": "a@b.c", "password": "x", "confirm_password": "y"}
	if code := g.do(t, "POST", "/api/auth/register", reg, nil); code != http.StatusBadRequest {
		t.Fatalf("register mismatch = %d", code)
	}
	if code := g.do(t, "POST", "/api/auth/logout", nil, nil); code != http.StatusNoContent {
		t.Fatalf("logout = %d", code)
	}
}

func TestSessionRoutesRefuseOtherUsers(t *testing.T) {
	g := newGateway(t)
	var snap simulado.Snapshot
	if code := g.doAs(t, "u1", "GET", "/api/session/", nil, &snap); code != 200 {
		t.Fatalf("own session code = %d", code)
	}
	for _, path := range []string{"/api/session/", "/api/history/", "/api/chat/"} {
		if code := g.doAs(t, "u2", "GET", path, nil, nil); code != http.StatusForbidden {
			t.Fatalf("%s as another user: code = %d", path, code)
		}
	}
	if code := g.doAs(t, "u2", "GET", "/api/topics/fields", nil, nil); code != 200 {
		t.Fatalf("topics are not per user: code = %d", code)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{simulado.ErrFinalizeInProgress, http.StatusConflict},
		{simulado.ErrFinalize, http.StatusBadGateway},
		{simulado.ErrRestart, http.StatusBadGateway},
		{&examapi.StatusError{Op: "get exam", Code: 404}, http.StatusNotFound},
		{&examapi.StatusError{Op: "create exam", Code: 503}, http.StatusBadGateway},
		{&auth.APIError{Op: "login", Code: 400}, http.StatusBadRequest},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := statusFor(c.err); got != c.want {
			t.Errorf("statusFor(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}
