package chat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/genem/simulado/internal/examapi"
	"github.com/genem/simulado/internal/examapi/examapitest"
)

type fakeAPI struct {
	opens   atomic.Int32
	gate    chan struct{}
	failMsg atomic.Bool
}

func (f *fakeAPI) OpenConversation(_ context.Context, req examapi.ConversationOpenRequest) (examapi.ConversationOpenResponse, error) {
	n := f.opens.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	return examapi.ConversationOpenResponse{
		SessionID:     req.QuestionID + "-s" + string(rune('0'+n)),
		AgentResponse: "hello",
		CreatedAt:     "2025-01-02T03:04:05Z",
	}, nil
}

func (f *fakeAPI) SendMessage(_ context.Context, req examapi.ConversationMessageRequest) (examapi.ConversationMessageResponse, error) {
	if f.failMsg.Load() {
		return examapi.ConversationMessageResponse{}, errors.New("timeout")
	}
	return examapi.ConversationMessageResponse{SessionID: req.SessionID, AgentResponse: "re: " + req.Message}, nil
}

func TestOpenReusesSessionPerQuestion(t *testing.T) {
	api := &fakeAPI{}
	c := NewCache(api, func() string { return "u1" })
	ctx := context.Background()

	a, err := c.Open(ctx, "q1")
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Open(ctx, "q1")
	if err != nil {
		t.Fatal(err)
	}
	if a.SessionID != b.SessionID || api.opens.Load() != 1 {
		t.Fatalf("sessions %s/%s after %d opens", a.SessionID, b.SessionID, api.opens.Load())
	}
	if len(a.Messages) != 1 || a.Messages[0].Role != RoleAssistant || a.Messages[0].Content != "hello" {
		t.Fatalf("greeting = %+v", a.Messages)
	}
	if _, err := c.Open(ctx, "q2"); err != nil {
		t.Fatal(err)
	}
	if api.opens.Load() != 2 || len(c.Sessions()) != 2 {
		t.Fatalf("opens=%d sessions=%d", api.opens.Load(), len(c.Sessions()))
	}
}

func TestConcurrentOpensShareOneRequest(t *testing.T) {
	api := &fakeAPI{gate: make(chan struct{})}
	c := NewCache(api, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 5)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := c.Open(ctx, "q1")
			if err != nil {
				t.Error(err)
				return
			}
			ids[i] = s.SessionID
		}(i)
	}
	close(api.gate)
	wg.Wait()
	if api.opens.Load() != 1 {
		t.Fatalf("opens = %d, want 1", api.opens.Load())
	}
	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("different sessions: %v", ids)
		}
	}
}

func TestSendKeepsUserMessageOnFailure(t *testing.T) {
	api := &fakeAPI{}
	c := NewCache(api, nil)
	ctx := context.Background()

	if _, err := c.Send(ctx, "q1", "hi"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("send without session: %v", err)
	}
	if _, err := c.Open(ctx, "q1"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Send(ctx, "q1", "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("empty send: %v", err)
	}

	api.failMsg.Store(true)
	if _, err := c.Send(ctx, "q1", "why B?"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("failed send: %v", err)
	}
	s, _ := c.Session("q1")
	if len(s.Messages) != 2 || s.Messages[1].Role != RoleUser {
		t.Fatalf("messages after failure = %+v", s.Messages)
	}

	api.failMsg.Store(false)
	reply, err := c.Send(ctx, "q1", "why B?")
	if err != nil {
		t.Fatal(err)
	}
	if reply.Content != "re: why B?" {
		t.Fatalf("reply = %q", reply.Content)
	}
	s, _ = c.Session("q1")
	if len(s.Messages) != 4 || s.Messages[3].ID == s.Messages[2].ID {
		t.Fatalf("messages = %+v", s.Messages)
	}
}

func TestCloseAndDelete(t *testing.T) {
	api := &fakeAPI{}
	c := NewCache(api, nil)
	ctx := context.Background()

	first, _ := c.Open(ctx, "q1")
	c.Close("q1")
	if s, _ := c.Session("q1"); s.Active {
		t.Fatal("closed session still active")
	}
	if _, err := c.Send(ctx, "q1", "hi"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("send to closed session: %v", err)
	}
	second, _ := c.Open(ctx, "q1")
	if second.SessionID == first.SessionID {
		t.Fatal("closed session reused")
	}

	c.Delete("q1")
	if _, ok := c.Session("q1"); ok {
		t.Fatal("deleted session still cached")
	}
}

func TestOpenFailureIsNotCached(t *testing.T) {
	srv := examapitest.New(0, nil)
	defer srv.Close()
	srv.Set(func(s *examapitest.Server) { s.FailChat = true })
	c := NewCache(examapi.New(examapi.Config{BaseURL: srv.URL}), func() string { return "u1" })
	ctx := context.Background()

	if _, err := c.Open(ctx, "q9"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("open err = %v", err)
	}
	srv.Set(func(s *examapitest.Server) { s.FailChat = false })
	s, err := c.Open(ctx, "q9")
	if err != nil {
		t.Fatal(err)
	}
	reply, err := c.Send(ctx, "q9", "explain")
	if err != nil || reply.Content != "echo: explain" {
		t.Fatalf("reply = %+v, %v", reply, err)
	}
	if s.UserID != "u1" {
		t.Fatalf("user = %q", s.UserID)
	}
}
