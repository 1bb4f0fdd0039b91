package simulado

import (
	"context"
	"sync"
	"time"

	"github.com/genem/simulado/internal/examapi"
	"github.com/genem/simulado/internal/logger"
)

type pendingAnswer struct {
	examID string
	userID string
	letter string
	seq    uint64
}

// AnswerPipeline sends answer selections to the exam service in the
// background. Failed sends are kept per question so they can be retried
// before the exam is finalized; a later selection of the same question
// supersedes an earlier one.
type AnswerPipeline struct {
	exams   ExamService
	timeout time.Duration

	mu      sync.Mutex
	seq     uint64
	latest  map[string]uint64 // question id -> seq of the newest selection
	pending map[string]pendingAnswer
	wg      sync.WaitGroup
}

func NewAnswerPipeline(exams ExamService, timeout time.Duration) *AnswerPipeline {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AnswerPipeline{
		exams:   exams,
		timeout: timeout,
		latest:  map[string]uint64{},
		pending: map[string]pendingAnswer{},
	}
}

// Submit sends one selection without blocking the caller.
func (p *AnswerPipeline) Submit(examID, userID, questionID, letter string) {
	p.mu.Lock()
	p.seq++
	n := p.seq
	p.latest[questionID] = n
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		_, err := p.exams.UpdateAnswer(ctx, examID, userID, examapi.ExamAnswerUpdate{QuestionID: questionID, UserAnswer: letter})
		p.settle(questionID, pendingAnswer{examID: examID, userID: userID, letter: letter, seq: n}, err)
	}()
}

func (p *AnswerPipeline) settle(questionID string, a pendingAnswer, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latest[questionID] != a.seq {
		return
	}
	if err != nil {
		logger.Warn("answer %s=%s for exam %s not saved: %v", questionID, a.letter, a.examID, err)
		p.pending[questionID] = a
		return
	}
	delete(p.pending, questionID)
}

// Wait blocks until every in-flight send has settled.
func (p *AnswerPipeline) Wait() { p.wg.Wait() }

// Retry resends each failed selection once and returns how many are still
// unsaved.
func (p *AnswerPipeline) Retry(ctx context.Context) int {
	p.mu.Lock()
	todo := make(map[string]pendingAnswer, len(p.pending))
	for k, v := range p.pending {
		todo[k] = v
	}
	p.mu.Unlock()

	for qid, a := range todo {
		_, err := p.exams.UpdateAnswer(ctx, a.examID, a.userID, examapi.ExamAnswerUpdate{QuestionID: qid, UserAnswer: a.letter})
		p.settle(qid, a, err)
	}
	return p.Pending()
}

func (p *AnswerPipeline) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Reset forgets everything about the previous exam. Sends still in flight
// settle into nothing.
func (p *AnswerPipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latest = map[string]uint64{}
	p.pending = map[string]pendingAnswer{}
}
