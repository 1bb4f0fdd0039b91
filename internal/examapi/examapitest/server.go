// Package examapitest runs an in-memory exam service for tests. It grades
// exams, records the requests it receives and can be told to fail.
package examapitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/genem/simulado/internal/examapi"
)

type exam struct {
	id        string
	userID    string
	status    string
	questions []string          // question ids in order
	answers   map[string]string // question id -> letter
	createdAt time.Time
	updatedAt time.Time
	finished  *time.Time
}

type poolQuestion struct {
	q       examapi.QuestionForExam
	correct string
	topic   string
}

// Server is a fake of the exam/topic/conversation service.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	pool     []poolQuestion
	topics   []examapi.QuestionTopic
	exams    map[string]*exam
	seq      int
	sessions map[string]string // session id -> question id

	// Requests received, for assertions.
	CreateRequests []examapi.ExamCreateRequest
	AnswerUpdates  []examapi.ExamAnswerUpdate
	FinalizeCalls  int
	DetailsCalls   int
	TopicSearches  []examapi.TopicFilter
	OpenCalls      int
	AuthHeaders    []string

	// Failure injection.
	FailCreate   bool
	FailFinalize bool
	FailDetails  bool
	FailAnswers  bool
	FailChat     bool
	// ShortBy makes the created exam hold that many questions fewer than requested.
	ShortBy int
	// FinalizeGate, when set, blocks finalize requests until it is closed.
	FinalizeGate chan struct{}
}

// New starts a server seeded with n questions (letters A..E, correct answer
// cycling) and the given topics.
func New(n int, topics []examapi.QuestionTopic) *Server {
	s := &Server{
		exams:    map[string]*exam{},
		sessions: map[string]string{},
		topics:   topics,
	}
	for i := 1; i <= n; i++ {
		topic := ""
		if len(topics) > 0 {
			topic = topics[(i-1)%len(topics)].ID
		}
		s.pool = append(s.pool, poolQuestion{
			q: examapi.QuestionForExam{
				ID:                       fmt.Sprintf("q%d", i),
				Year:                     2015 + i%9,
				Discipline:               "matematica",
				Context:                  fmt.Sprintf("Context %d", i),
				AlternativesIntroduction: "Choose one:",
				Alternatives: []examapi.Alternative{
					{Letter: "A", Text: "alpha"}, {Letter: "B", Text: "beta"}, {Letter: "C", Text: "gamma"},
					{Letter: "D", Text: "delta"}, {Letter: "E", Text: "epsilon"},
				},
			},
			correct: string(rune('A' + (i-1)%5)),
			topic:   topic,
		})
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

// Correct returns the answer key of a pooled question.
func (s *Server) Correct(questionID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pool {
		if p.q.ID == questionID {
			return p.correct
		}
	}
	return ""
}

// Answer returns the stored answer of a question in an exam.
func (s *Server) Answer(examID, questionID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.exams[examID]; ok {
		return e.answers[questionID]
	}
	return ""
}

// Seed stores an exam directly, e.g. to resume one from history.
func (s *Server) Seed(userID, status string, questionIDs []string, answers map[string]string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	id := fmt.Sprintf("exam-%d", s.seq)
	now := time.Now()
	e := &exam{id: id, userID: userID, status: status, questions: questionIDs, answers: map[string]string{}, createdAt: now, updatedAt: now}
	for k, v := range answers {
		e.answers[k] = v
	}
	if status == examapi.StatusFinished {
		e.finished = &now
	}
	s.exams[id] = e
	return id
}

// Set guards a mutation of the failure flags from another goroutine.
func (s *Server) Set(fn func(s *Server)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

// Snapshot runs fn under the server lock, for reading recorded requests.
func (s *Server) Snapshot(fn func(s *Server)) { s.Set(fn) }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.mu.Lock()
			s.AuthHeaders = append(s.AuthHeaders, r.Header.Get("Authorization"))
			s.mu.Unlock()
			next.ServeHTTP(w, r)
		})
	})
	r.Post("/exams/create", s.createExam)
	r.Get("/exams/totalizers/user/{userID}", s.totalizers)
	r.Get("/exams/user/{userID}", s.listExams)
	r.Get("/exams/{examID}", s.getExam)
	r.Get("/exams/{examID}/details", s.getDetails)
	r.Patch("/exams/{examID}/answer", s.updateAnswer)
	r.Post("/exams/{examID}/finalize", s.finalize)
	r.Delete("/exams/{examID}", s.deleteExam)

	r.Get("/question-topics/", s.searchTopics)
	r.Get("/question-topics/distinct/{what}", s.distinct)

	r.Post("/conversation/open", s.openConversation)
	r.Post("/conversation/message", s.sendMessage)
	return r
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func fail(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, map[string]string{"detail": detail})
}

func (s *Server) createExam(w http.ResponseWriter, r *http.Request) {
	var req examapi.ExamCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "bad json")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CreateRequests = append(s.CreateRequests, req)
	if s.FailCreate {
		fail(w, http.StatusServiceUnavailable, "exam generation unavailable")
		return
	}

	var ids []string
	if req.ExamReplicID != "" {
		src, ok := s.exams[req.ExamReplicID]
		if !ok {
			fail(w, http.StatusNotFound, "exam to replicate not found")
			return
		}
		ids = append(ids, src.questions...)
	} else {
		want := req.QuestionCount
		if want == 0 {
			want = 25
		}
		allowed := map[string]bool{}
		for _, t := range req.Topics {
			allowed[t] = true
		}
		for _, p := range s.pool {
			if len(ids) >= want-s.ShortBy {
				break
			}
			if len(allowed) > 0 && !allowed[p.topic] {
				continue
			}
			ids = append(ids, p.q.ID)
		}
	}

	s.seq++
	now := time.Now()
	e := &exam{
		id: fmt.Sprintf("exam-%d", s.seq), userID: req.UserID, status: examapi.StatusNotStarted,
		questions: ids, answers: map[string]string{}, createdAt: now, updatedAt: now,
	}
	s.exams[e.id] = e
	respondJSON(w, http.StatusOK, examapi.ExamResponse{ExamID: e.id, Status: e.status, Message: "exam created"})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*exam, bool) {
	e, ok := s.exams[chi.URLParam(r, "examID")]
	if !ok {
		fail(w, http.StatusNotFound, "exam not found")
		return nil, false
	}
	return e, true
}

func (s *Server) question(id string) (poolQuestion, bool) {
	for _, p := range s.pool {
		if p.q.ID == id {
			return p, true
		}
	}
	return poolQuestion{}, false
}

func (s *Server) getExam(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	out := examapi.ExamForUser{
		ID: e.id, Status: e.status, TotalQuestions: len(e.questions),
		AnsweredQuestions: len(e.answers), CreatedAt: e.createdAt.Format(time.RFC3339),
	}
	for _, id := range e.questions {
		if p, ok := s.question(id); ok {
			out.Questions = append(out.Questions, p.q)
		}
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) details(e *exam) examapi.ExamDetails {
	d := examapi.ExamDetails{
		ID: e.id, UserID: e.userID, TotalQuestions: len(e.questions), Status: e.status,
		CreatedAt: e.createdAt.Format(time.RFC3339), UpdatedAt: e.updatedAt.Format(time.RFC3339),
	}
	if e.finished != nil {
		d.FinishedAt = e.finished.Format(time.RFC3339)
	}
	for _, id := range e.questions {
		p, _ := s.question(id)
		eq := examapi.ExamQuestion{QuestionID: id, UserAnswer: e.answers[id], CorrectAnswer: p.correct}
		if eq.UserAnswer != "" {
			ok := eq.UserAnswer == p.correct
			eq.IsCorrect = &ok
			if ok {
				d.TotalCorrectAnswers++
			} else {
				d.TotalWrongAnswers++
			}
		}
		d.Questions = append(d.Questions, eq)
	}
	return d
}

func (s *Server) getDetails(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DetailsCalls++
	if s.FailDetails {
		fail(w, http.StatusInternalServerError, "details unavailable")
		return
	}
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, s.details(e))
}

func (s *Server) updateAnswer(w http.ResponseWriter, r *http.Request) {
	var upd examapi.ExamAnswerUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		fail(w, http.StatusBadRequest, "bad json")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AnswerUpdates = append(s.AnswerUpdates, upd)
	if s.FailAnswers {
		fail(w, http.StatusServiceUnavailable, "answers unavailable")
		return
	}
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if e.status == examapi.StatusFinished {
		fail(w, http.StatusConflict, "exam already finished")
		return
	}
	e.answers[upd.QuestionID] = upd.UserAnswer
	e.status = examapi.StatusInProgress
	e.updatedAt = time.Now()
	respondJSON(w, http.StatusOK, examapi.ExamResponse{ExamID: e.id, Status: e.status, Message: "answer updated"})
}

func (s *Server) finalize(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.FinalizeCalls++
	gate := s.FinalizeGate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailFinalize {
		fail(w, http.StatusInternalServerError, "finalize failed")
		return
	}
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if e.status != examapi.StatusFinished {
		now := time.Now()
		e.status = examapi.StatusFinished
		e.finished = &now
		e.updatedAt = now
	}
	respondJSON(w, http.StatusOK, examapi.ExamResponse{ExamID: e.id, Status: e.status, Message: "exam finalized"})
}

func (s *Server) deleteExam(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	delete(s.exams, e.id)
	respondJSON(w, http.StatusOK, examapi.DeleteResponse{Message: "exam deleted", ExamID: e.id})
}

func (s *Server) listExams(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	status := r.URL.Query().Get("status")
	skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 10
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []examapi.ExamSummary
	var stats examapi.UserExamStats
	for i := 1; i <= s.seq; i++ {
		e, ok := s.exams[fmt.Sprintf("exam-%d", i)]
		if !ok || e.userID != userID {
			continue
		}
		d := s.details(e)
		stats.TotalExams++
		stats.TotalQuestionsAnswered += len(e.answers)
		stats.TotalCorrectAnswers += d.TotalCorrectAnswers
		if e.status == examapi.StatusFinished {
			stats.FinishedExams++
		}
		if status != "" && e.status != status {
			continue
		}
		all = append(all, examapi.ExamSummary{
			ID: e.id, UserID: e.userID, TotalQuestions: len(e.questions), AnsweredQuestions: len(e.answers),
			TotalCorrectAnswers: d.TotalCorrectAnswers, TotalWrongAnswers: d.TotalWrongAnswers,
			Status: e.status, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt, FinishedAt: d.FinishedAt,
		})
	}
	if stats.TotalQuestionsAnswered > 0 {
		stats.AverageScore = float64(stats.TotalCorrectAnswers) / float64(stats.TotalQuestionsAnswered) * 100
	}
	page := []examapi.ExamSummary{}
	for i := skip; i < len(all) && len(page) < limit; i++ {
		page = append(page, all[i])
	}
	respondJSON(w, http.StatusOK, examapi.UserExamsPage{
		Exams:      page,
		Pagination: examapi.Pagination{Skip: skip, Limit: limit, Total: len(all), Returned: len(page)},
		Stats:      stats,
	})
}

func (s *Server) totalizers(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	s.mu.Lock()
	defer s.mu.Unlock()
	var t examapi.ExamTotalizers
	for _, e := range s.exams {
		if e.userID != userID {
			continue
		}
		d := s.details(e)
		t.TotalExams++
		switch e.status {
		case examapi.StatusFinished:
			t.FinishedExams++
		case examapi.StatusInProgress:
			t.InProgressExams++
		default:
			t.NotStartedExams++
		}
		t.TotalQuestionsAnswered += len(e.answers)
		t.TotalCorrectAnswers += d.TotalCorrectAnswers
		t.TotalWrongAnswers += d.TotalWrongAnswers
	}
	if t.TotalQuestionsAnswered > 0 {
		t.AverageScore = float64(t.TotalCorrectAnswers) / float64(t.TotalQuestionsAnswered) * 100
	}
	respondJSON(w, http.StatusOK, t)
}

func (s *Server) searchTopics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := examapi.TopicFilter{
		FieldCode:        q.Get("field_code"),
		AreaCode:         q.Get("area_code"),
		GeneralTopicCode: q.Get("general_topic_code"),
		SpecificTopic:    q.Get("search"),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TopicSearches = append(s.TopicSearches, f)
	out := []examapi.QuestionTopic{}
	for _, t := range s.topics {
		if matches(t, f) {
			out = append(out, t)
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true, "data": out, "total": len(out), "page": 1, "pageSize": -1,
	})
}

func matches(t examapi.QuestionTopic, f examapi.TopicFilter) bool {
	return (f.FieldCode == "" || t.FieldCode == f.FieldCode) &&
		(f.AreaCode == "" || t.AreaCode == f.AreaCode) &&
		(f.GeneralTopicCode == "" || t.GeneralTopicCode == f.GeneralTopicCode) &&
		(f.SpecificTopic == "" || strings.Contains(strings.ToLower(t.SpecificTopic), strings.ToLower(f.SpecificTopic)))
}

func (s *Server) distinct(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := examapi.TopicFilter{FieldCode: q.Get("field_code"), AreaCode: q.Get("area_code"), GeneralTopicCode: q.Get("general_topic_code")}
	pick := map[string]func(examapi.QuestionTopic) string{
		"fields":          func(t examapi.QuestionTopic) string { return t.Field },
		"field-codes":     func(t examapi.QuestionTopic) string { return t.FieldCode },
		"areas":           func(t examapi.QuestionTopic) string { return t.Area },
		"area-codes":      func(t examapi.QuestionTopic) string { return t.AreaCode },
		"general-topics":  func(t examapi.QuestionTopic) string { return t.GeneralTopic },
		"specific-topics": func(t examapi.QuestionTopic) string { return t.SpecificTopic },
	}[chi.URLParam(r, "what")]
	if pick == nil {
		fail(w, http.StatusNotFound, "unknown distinct field")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	out := []string{}
	for _, t := range s.topics {
		if !matches(t, f) || seen[pick(t)] {
			continue
		}
		seen[pick(t)] = true
		out = append(out, pick(t))
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "data": out, "total": len(out)})
}

func (s *Server) openConversation(w http.ResponseWriter, r *http.Request) {
	var req examapi.ConversationOpenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "bad json")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OpenCalls++
	if s.FailChat {
		fail(w, http.StatusServiceUnavailable, "assistant unavailable")
		return
	}
	s.seq++
	sid := fmt.Sprintf("session-%d", s.seq)
	s.sessions[sid] = req.QuestionID
	respondJSON(w, http.StatusOK, examapi.ConversationOpenResponse{
		SessionID: sid, ConversationID: "conv-" + sid,
		AgentResponse: "Let's look at question " + req.QuestionID + ".",
		CreatedAt:     time.Now().Format(time.RFC3339),
	})
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req examapi.ConversationMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "bad json")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailChat {
		fail(w, http.StatusServiceUnavailable, "assistant unavailable")
		return
	}
	if _, ok := s.sessions[req.SessionID]; !ok {
		fail(w, http.StatusNotFound, "session not found")
		return
	}
	respondJSON(w, http.StatusOK, examapi.ConversationMessageResponse{
		SessionID: req.SessionID, ConversationID: "conv-" + req.SessionID,
		UserMessage: req.Message, AgentResponse: "echo: " + req.Message,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}
