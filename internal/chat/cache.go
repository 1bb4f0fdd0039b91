// Package chat keeps one assistant conversation per question.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/genem/simulado/internal/examapi"
	"github.com/genem/simulado/internal/logger"
)

var (
	ErrNoSession    = errors.New("no conversation open for this question")
	ErrEmptyMessage = errors.New("message is empty")
	ErrUnavailable  = errors.New("assistant unavailable")
)

// API is the conversation part of the exam service.
type API interface {
	OpenConversation(ctx context.Context, req examapi.ConversationOpenRequest) (examapi.ConversationOpenResponse, error)
	SendMessage(ctx context.Context, req examapi.ConversationMessageRequest) (examapi.ConversationMessageResponse, error)
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type Session struct {
	SessionID      string    `json:"session_id"`
	ConversationID string    `json:"conversation_id"`
	QuestionID     string    `json:"question_id"`
	UserID         string    `json:"user_id"`
	Messages       []Message `json:"messages"`
	Active         bool      `json:"active"`
}

func (s *Session) copy() Session {
	out := *s
	out.Messages = append([]Message(nil), s.Messages...)
	return out
}

type entry struct {
	ready   chan struct{} // closed once the open attempt settled
	session *Session
	err     error
}

// Cache maps question ids to sessions. Opening the same question twice
// returns the same session; concurrent opens share one request.
type Cache struct {
	api    API
	userID func() string

	mu      sync.Mutex
	entries map[string]*entry
}

func NewCache(api API, userID func() string) *Cache {
	if userID == nil {
		id := uuid.NewString()
		userID = func() string { return id }
	}
	return &Cache{api: api, userID: userID, entries: map[string]*entry{}}
}

// Open returns the active session for questionID, opening one if needed.
func (c *Cache) Open(ctx context.Context, questionID string) (Session, error) {
	c.mu.Lock()
	e, ok := c.entries[questionID]
	if ok {
		select {
		case <-e.ready:
			if e.err == nil && e.session.Active {
				s := e.session.copy()
				c.mu.Unlock()
				return s, nil
			}
			ok = false
		default:
		}
	}
	if !ok {
		e = &entry{ready: make(chan struct{})}
		c.entries[questionID] = e
		go c.open(questionID, e)
	}
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return Session{}, ctx.Err()
	case <-e.ready:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e.err != nil {
		return Session{}, e.err
	}
	return e.session.copy(), nil
}

// open runs detached from the first caller's context so a canceled caller
// does not fail the others waiting on the same question.
func (c *Cache) open(questionID string, e *entry) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	user := c.userID()
	res, err := c.api.OpenConversation(ctx, examapi.ConversationOpenRequest{QuestionID: questionID, UserID: user})

	c.mu.Lock()
	defer c.mu.Unlock()
	defer close(e.ready)
	if err != nil {
		logger.Warn("chat: open conversation for %s: %v", questionID, err)
		e.err = fmt.Errorf("%w: %w", ErrUnavailable, err)
		if c.entries[questionID] == e {
			delete(c.entries, questionID)
		}
		return
	}
	e.session = &Session{
		SessionID:      res.SessionID,
		ConversationID: res.ConversationID,
		QuestionID:     questionID,
		UserID:         user,
		Active:         true,
		Messages: []Message{{
			ID: uuid.NewString(), Role: RoleAssistant, Content: res.AgentResponse, Timestamp: parseTime(res.CreatedAt),
		}},
	}
}

// Send posts text to the question's session and returns the reply. On
// failure the user message stays in the history and the send can be retried.
func (c *Cache) Send(ctx context.Context, questionID, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}
	c.mu.Lock()
	e, ok := c.entries[questionID]
	if !ok || !settled(e) || e.err != nil || !e.session.Active {
		c.mu.Unlock()
		return Message{}, ErrNoSession
	}
	s := e.session
	s.Messages = append(s.Messages, Message{ID: uuid.NewString(), Role: RoleUser, Content: text, Timestamp: time.Now()})
	req := examapi.ConversationMessageRequest{SessionID: s.SessionID, UserID: s.UserID, Message: text}
	c.mu.Unlock()

	res, err := c.api.SendMessage(ctx, req)
	if err != nil {
		logger.Warn("chat: send to %s: %v", req.SessionID, err)
		return Message{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	reply := Message{ID: uuid.NewString(), Role: RoleAssistant, Content: res.AgentResponse, Timestamp: parseTime(res.Timestamp)}

	c.mu.Lock()
	defer c.mu.Unlock()
	s.Messages = append(s.Messages, reply)
	return reply, nil
}

// Close marks the session inactive; the next Open starts a new one.
func (c *Cache) Close(questionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[questionID]; ok && settled(e) && e.err == nil {
		e.session.Active = false
	}
}

func (c *Cache) Delete(questionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, questionID)
}

// Session returns the cached session of questionID.
func (c *Cache) Session(questionID string) (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[questionID]
	if !ok || !settled(e) || e.err != nil {
		return Session{}, false
	}
	return e.session.copy(), true
}

// Sessions lists every opened session, active or not.
func (c *Cache) Sessions() []Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Session, 0, len(c.entries))
	for _, e := range c.entries {
		if settled(e) && e.err == nil {
			out = append(out, e.session.copy())
		}
	}
	return out
}

func settled(e *entry) bool {
	select {
	case <-e.ready:
		return true
	default:
		return false
	}
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Now()
}
