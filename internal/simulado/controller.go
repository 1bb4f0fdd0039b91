// Package simulado runs the exam session: generating a simulado, answering
// it against a countdown, finishing it exactly once and browsing history.
package simulado

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/genem/simulado/internal/examapi"
	"github.com/genem/simulado/internal/logger"
	"github.com/genem/simulado/internal/state"
)

// ExamService is the part of the exam API the controller needs.
// *examapi.Client satisfies it.
type ExamService interface {
	CreateExam(ctx context.Context, req examapi.ExamCreateRequest) (examapi.ExamResponse, error)
	GetExam(ctx context.Context, examID, userID string) (examapi.ExamForUser, error)
	GetExamDetails(ctx context.Context, examID, userID string) (examapi.ExamDetails, error)
	UpdateAnswer(ctx context.Context, examID, userID string, upd examapi.ExamAnswerUpdate) (examapi.ExamResponse, error)
	FinalizeExam(ctx context.Context, examID, userID string) (examapi.ExamResponse, error)
	ListUserExams(ctx context.Context, userID string, opts examapi.ListOptions) (examapi.UserExamsPage, error)
	GetUserTotalizers(ctx context.Context, userID string) (examapi.ExamTotalizers, error)
	DeleteExam(ctx context.Context, examID, userID string) (examapi.DeleteResponse, error)
}

type Options struct {
	// UserID returns the user the exam service is queried for.
	UserID func() string
	// UseMockData skips the exam service when generating.
	UseMockData bool
	// DefaultTimeLimit, in minutes, applies to exams resumed from history.
	DefaultTimeLimit int
	SubmitTimeout    time.Duration
	// TickInterval is the length of one countdown second.
	TickInterval time.Duration
	// FinishTimeout bounds an automatic finish on expiry.
	FinishTimeout time.Duration
}

const (
	defaultTimeLimit   = 60
	defaultReplicCount = 25
	resumeDescription  = "Continuando exame anterior"
	reviewDescription  = "Refazendo exame anterior"
)

// Controller owns the session state machine. All methods are safe for
// concurrent use.
type Controller struct {
	exams    ExamService
	app      *AppState
	opts     Options
	pipeline *AnswerPipeline

	mu         sync.Mutex
	gen        uint64 // bumped on every committed transition
	generating bool
	finalizing bool
	countdown  *Countdown
}

// New loads the persisted session from st. A session restored in the
// simulado phase resumes its countdown from the full time limit.
func New(ctx context.Context, exams ExamService, st state.Store, opts Options) (*Controller, error) {
	app, err := LoadAppState(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if opts.UserID == nil {
		opts.UserID = func() string { return "" }
	}
	if opts.DefaultTimeLimit <= 0 {
		opts.DefaultTimeLimit = defaultTimeLimit
	}
	if opts.FinishTimeout <= 0 {
		opts.FinishTimeout = 30 * time.Second
	}
	c := &Controller{
		exams:    exams,
		app:      app,
		opts:     opts,
		pipeline: NewAnswerPipeline(exams, opts.SubmitTimeout),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch app.Phase.Get() {
	case PhaseSimulado:
		cfg := app.Config.Get()
		if cfg == nil || app.ExamID.Get() == "" || len(app.Questions.Get()) == 0 {
			logger.Warn("restored simulado phase without an exam, back to builder")
			err = app.Phase.Set(ctx, PhaseBuilder)
			break
		}
		c.startCountdownLocked(cfg.TimeLimit * 60)
	case PhaseResults, PhaseViewHistoryExam:
		if app.Details.Get() == nil {
			err = app.Phase.Set(ctx, PhaseBuilder)
		}
	}
	if err != nil {
		app.Close()
		return nil, err
	}
	return c, nil
}

// State exposes the persisted session values.
func (c *Controller) State() *AppState { return c.app }

// Close stops the countdown, drains answer sends and stops following the
// store.
func (c *Controller) Close() {
	c.mu.Lock()
	c.stopCountdownLocked()
	c.mu.Unlock()
	c.pipeline.Wait()
	c.app.Close()
}

// Wait blocks until background answer sends have settled.
func (c *Controller) Wait() { c.pipeline.Wait() }

func (c *Controller) userID() string { return c.opts.UserID() }

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		Phase:          c.app.Phase.Get(),
		ExamID:         c.app.ExamID.Get(),
		Config:         c.app.Config.Get(),
		Questions:      c.app.Questions.Get(),
		Answers:        c.app.Answers.Get().clone(),
		Details:        c.app.Details.Get(),
		PendingAnswers: c.pipeline.Pending(),
		Generating:     c.generating,
		Finalizing:     c.finalizing,
	}
	s.Offline = IsOffline(s.ExamID)
	if c.countdown != nil {
		s.RemainingSeconds = c.countdown.Remaining()
	}
	return s
}

// Remaining is the countdown's remaining seconds, or 0 when none runs.
func (c *Controller) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.countdown == nil {
		return 0
	}
	return c.countdown.Remaining()
}

func (c *Controller) startCountdownLocked(seconds int) {
	c.stopCountdownLocked()
	var cd *Countdown
	cd = NewCountdown(seconds, c.opts.TickInterval, func() { c.expire(cd) })
	c.countdown = cd
	cd.Start()
}

func (c *Controller) stopCountdownLocked() {
	if c.countdown != nil {
		c.countdown.Stop()
		c.countdown = nil
	}
}

// expire finishes the exam when the countdown that fired is still current.
func (c *Controller) expire(cd *Countdown) {
	c.mu.Lock()
	current := c.countdown == cd
	c.mu.Unlock()
	if !current {
		return
	}
	logger.Info("time is up, finishing exam %s", c.app.ExamID.Get())
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.FinishTimeout)
	defer cancel()
	if _, err := c.Finish(ctx); err != nil {
		logger.Error("automatic finish: %v", err)
	}
}

// enterLocked commits a new exam and moves to the simulado phase.
func (c *Controller) enterLocked(ctx context.Context, examID string, qs []Question, cfg *Config, answers AnswerMap) error {
	c.stopCountdownLocked()
	c.pipeline.Reset()
	c.gen++
	if err := c.persist(ctx,
		func(ctx context.Context) error { return c.app.Questions.Set(ctx, qs) },
		func(ctx context.Context) error { return c.app.ExamID.Set(ctx, examID) },
		func(ctx context.Context) error { return c.app.Config.Set(ctx, cfg) },
		func(ctx context.Context) error { return c.app.Details.Set(ctx, nil) },
		func(ctx context.Context) error { return c.app.Answers.Set(ctx, answers) },
		func(ctx context.Context) error { return c.app.Phase.Set(ctx, PhaseSimulado) },
	); err != nil {
		return err
	}
	c.startCountdownLocked(cfg.TimeLimit * 60)
	return nil
}

func (c *Controller) persist(ctx context.Context, steps ...func(context.Context) error) error {
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return fmt.Errorf("persist session: %w", err)
		}
	}
	return nil
}

// Generate creates a simulado from cfg. When the exam service fails or
// returns a different number of questions, a local placeholder exam of
// exactly cfg.TotalQuestions questions is used instead.
func (c *Controller) Generate(ctx context.Context, cfg Config) (Snapshot, error) {
	if err := cfg.Validate(); err != nil {
		return Snapshot{}, err
	}
	c.mu.Lock()
	if c.generating {
		c.mu.Unlock()
		return Snapshot{}, ErrGenerationInProgress
	}
	c.generating = true
	gen := c.gen
	c.mu.Unlock()

	examID, qs := c.fetchExam(ctx, cfg)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.generating = false
	if c.gen != gen {
		return Snapshot{}, ErrSessionChanged
	}
	if err := c.enterLocked(ctx, examID, qs, &cfg, nil); err != nil {
		return Snapshot{}, err
	}
	logger.Info("simulado %s started with %d questions", examID, len(qs))
	return c.snapshotLocked(), nil
}

func (c *Controller) fetchExam(ctx context.Context, cfg Config) (string, []Question) {
	if c.opts.UseMockData {
		return placeholderQuestions(cfg)
	}
	req := examapi.ExamCreateRequest{
		UserID:        c.userID(),
		QuestionCount: cfg.TotalQuestions,
		Years:         cfg.Years,
	}
	if len(cfg.TopicIDs) > 0 {
		req.Topics = append([]string(nil), cfg.TopicIDs...)
	}
	created, err := c.exams.CreateExam(ctx, req)
	if err != nil {
		logger.Warn("create exam failed, using offline questions: %v", err)
		return placeholderQuestions(cfg)
	}
	ex, err := c.exams.GetExam(ctx, created.ExamID, req.UserID)
	if err != nil {
		logger.Warn("load exam %s failed, using offline questions: %v", created.ExamID, err)
		return placeholderQuestions(cfg)
	}
	qs := convertQuestions(ex.Questions)
	if len(qs) != cfg.TotalQuestions {
		logger.Warn("exam %s has %d usable questions, %d requested; using offline questions",
			created.ExamID, len(qs), cfg.TotalQuestions)
		return placeholderQuestions(cfg)
	}
	return created.ExamID, qs
}

// SelectAnswer records the selection locally and sends it to the exam
// service in the background. Send failures never revert the selection.
func (c *Controller) SelectAnswer(ctx context.Context, questionID string, index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.app.Phase.Get() != PhaseSimulado {
		return ErrNotAnswering
	}
	if c.finalizing {
		return ErrFinalizeInProgress
	}
	var q *Question
	for _, cand := range c.app.Questions.Get() {
		if cand.ID == questionID {
			q = &cand
			break
		}
	}
	if q == nil {
		return fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}
	if index < 0 || index >= len(q.Alternatives) {
		return fmt.Errorf("%w: %d for %s", ErrInvalidAnswer, index, questionID)
	}
	if err := c.app.Answers.Update(ctx, func(m AnswerMap) AnswerMap {
		next := m.clone()
		next[questionID] = index
		return next
	}); err != nil {
		return fmt.Errorf("persist answer: %w", err)
	}

	examID := c.app.ExamID.Get()
	if IsOffline(examID) {
		return nil
	}
	c.pipeline.Submit(examID, c.userID(), questionID, q.Letter(index))
	return nil
}

// Finish finalizes the exam and loads its graded details. Only one finish
// runs at a time; a failure leaves the session answerable so it can be
// retried.
func (c *Controller) Finish(ctx context.Context) (examapi.ExamDetails, error) {
	c.mu.Lock()
	if c.app.Phase.Get() != PhaseSimulado {
		c.mu.Unlock()
		return examapi.ExamDetails{}, ErrNotAnswering
	}
	if c.finalizing {
		c.mu.Unlock()
		return examapi.ExamDetails{}, ErrFinalizeInProgress
	}
	c.finalizing = true
	gen := c.gen
	examID := c.app.ExamID.Get()
	qs := c.app.Questions.Get()
	answers := c.app.Answers.Get().clone()
	c.mu.Unlock()

	details, err := c.finalize(ctx, examID, qs, answers)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.finalizing = false
	if err != nil {
		return examapi.ExamDetails{}, fmt.Errorf("%w: %w", ErrFinalize, err)
	}
	if c.gen != gen {
		return details, ErrSessionChanged
	}
	c.stopCountdownLocked()
	c.gen++
	if err := c.persist(ctx,
		func(ctx context.Context) error { return c.app.Details.Set(ctx, &details) },
		func(ctx context.Context) error { return c.app.Phase.Set(ctx, PhaseResults) },
	); err != nil {
		return details, err
	}
	logger.Info("exam %s finished: %d correct, %d wrong", examID, details.TotalCorrectAnswers, details.TotalWrongAnswers)
	return details, nil
}

func (c *Controller) finalize(ctx context.Context, examID string, qs []Question, answers AnswerMap) (examapi.ExamDetails, error) {
	user := c.userID()
	if IsOffline(examID) {
		return gradeOffline(examID, user, qs, answers), nil
	}
	c.pipeline.Wait()
	if left := c.pipeline.Retry(ctx); left > 0 {
		logger.Warn("finishing exam %s with %d unsaved answers", examID, left)
	}
	if _, err := c.exams.FinalizeExam(ctx, examID, user); err != nil {
		return examapi.ExamDetails{}, err
	}
	return c.exams.GetExamDetails(ctx, examID, user)
}

// Restart answers the same questions again from scratch. A finished exam
// no longer accepts answers, so an online exam is replicated into a new
// remote attempt first; when that fails the session stays where it is.
func (c *Controller) Restart(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	switch c.app.Phase.Get() {
	case PhaseResults, PhaseViewHistoryExam:
	default:
		phase := c.app.Phase.Get()
		c.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: restart from %s", ErrInvalidTransition, phase)
	}
	qs := c.app.Questions.Get()
	if len(qs) == 0 {
		c.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: no questions to restart", ErrInvalidTransition)
	}
	cfg := c.app.Config.Get()
	if cfg == nil {
		cfg = &Config{TotalQuestions: len(qs), TimeLimit: c.opts.DefaultTimeLimit}
	}
	examID := c.app.ExamID.Get()
	gen := c.gen
	c.mu.Unlock()

	if !IsOffline(examID) {
		created, err := c.exams.CreateExam(ctx, examapi.ExamCreateRequest{
			UserID: c.userID(), ExamReplicID: examID, QuestionCount: len(qs),
		})
		if err != nil {
			return Snapshot{}, fmt.Errorf("%w: replicate %s: %w", ErrRestart, examID, err)
		}
		logger.Info("restarting exam %s as %s", examID, created.ExamID)
		examID = created.ExamID
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return Snapshot{}, ErrSessionChanged
	}
	if err := c.enterLocked(ctx, examID, qs, cfg, nil); err != nil {
		return Snapshot{}, err
	}
	return c.snapshotLocked(), nil
}

// NewSimulado discards the session and returns to the builder.
func (c *Controller) NewSimulado(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopCountdownLocked()
	c.pipeline.Reset()
	c.gen++
	return c.app.Reset(ctx)
}

// Resume goes back to answering the stored exam.
func (c *Controller) Resume(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cfg := c.app.Config.Get()
	if cfg == nil || c.app.ExamID.Get() == "" || len(c.app.Questions.Get()) == 0 || c.app.Details.Get() != nil {
		return Snapshot{}, fmt.Errorf("%w: no exam in progress", ErrInvalidTransition)
	}
	if c.app.Phase.Get() != PhaseSimulado {
		c.gen++
		if err := c.app.Phase.Set(ctx, PhaseSimulado); err != nil {
			return Snapshot{}, err
		}
	}
	if c.countdown == nil {
		c.startCountdownLocked(cfg.TimeLimit * 60)
	}
	return c.snapshotLocked(), nil
}

// moveLocked fails with ErrFinalizeInProgress while a finish is in flight.
func (c *Controller) moveLocked(ctx context.Context, to Phase) error {
	if c.finalizing {
		return ErrFinalizeInProgress
	}
	if c.app.Phase.Get() == PhaseSimulado && to != PhaseSimulado {
		c.stopCountdownLocked()
	}
	c.gen++
	return c.app.Phase.Set(ctx, to)
}

func (c *Controller) ViewHistory(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.moveLocked(ctx, PhaseHistory)
}

func (c *Controller) ShowProfile(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.moveLocked(ctx, PhaseProfile)
}

// BackToBuilder leaves the stored exam in place.
func (c *Controller) BackToBuilder(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.moveLocked(ctx, PhaseBuilder)
}

func (c *Controller) BackFromHistoryExam(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.app.Phase.Get() != PhaseViewHistoryExam {
		return fmt.Errorf("%w: not viewing a history exam", ErrInvalidTransition)
	}
	return c.moveLocked(ctx, PhaseHistory)
}
