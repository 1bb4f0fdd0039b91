package simulado

import (
	"context"
	"fmt"

	"github.com/genem/simulado/internal/examapi"
	"github.com/genem/simulado/internal/logger"
)

// OpenHistoryExam loads a past exam. Finished exams open read-only with
// their grading; unfinished ones go back to answering with the selections
// the service already holds.
func (c *Controller) OpenHistoryExam(ctx context.Context, examID string) (Snapshot, error) {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	user := c.userID()
	ex, err := c.exams.GetExam(ctx, examID, user)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load exam %s: %w", examID, err)
	}

	if ex.Status == examapi.StatusFinished {
		details, err := c.exams.GetExamDetails(ctx, examID, user)
		if err != nil {
			return Snapshot{}, fmt.Errorf("load details of %s: %w", examID, err)
		}
		qs := joinQuestions(ex.Questions, details)
		answers := answersFromDetails(qs, details)
		cfg := &Config{Description: reviewDescription, TotalQuestions: len(qs), TimeLimit: c.opts.DefaultTimeLimit}

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen != gen {
			return Snapshot{}, ErrSessionChanged
		}
		c.stopCountdownLocked()
		c.pipeline.Reset()
		c.gen++
		if err := c.persist(ctx,
			func(ctx context.Context) error { return c.app.Questions.Set(ctx, qs) },
			func(ctx context.Context) error { return c.app.ExamID.Set(ctx, examID) },
			func(ctx context.Context) error { return c.app.Config.Set(ctx, cfg) },
			func(ctx context.Context) error { return c.app.Details.Set(ctx, &details) },
			func(ctx context.Context) error { return c.app.Answers.Set(ctx, answers) },
			func(ctx context.Context) error { return c.app.Phase.Set(ctx, PhaseViewHistoryExam) },
		); err != nil {
			return Snapshot{}, err
		}
		return c.snapshotLocked(), nil
	}

	qs := convertQuestions(ex.Questions)
	if len(qs) == 0 {
		return Snapshot{}, fmt.Errorf("exam %s has no questions", examID)
	}
	var answers AnswerMap
	if details, err := c.exams.GetExamDetails(ctx, examID, user); err != nil {
		logger.Warn("could not load answers of %s, resuming without them: %v", examID, err)
	} else if a := answersFromDetails(qs, details); len(a) > 0 {
		answers = a
	}
	cfg := &Config{Description: resumeDescription, TotalQuestions: len(qs), TimeLimit: c.opts.DefaultTimeLimit}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return Snapshot{}, ErrSessionChanged
	}
	if err := c.enterLocked(ctx, examID, qs, cfg, answers); err != nil {
		return Snapshot{}, err
	}
	return c.snapshotLocked(), nil
}

// joinQuestions orders questions as the graded record lists them. Entries
// with no matching question are skipped.
func joinQuestions(served []examapi.QuestionForExam, d examapi.ExamDetails) []Question {
	byID := make(map[string]examapi.QuestionForExam, len(served))
	for _, q := range served {
		byID[q.ID] = q
	}
	out := make([]Question, 0, len(d.Questions))
	for _, eq := range d.Questions {
		wq, ok := byID[eq.QuestionID]
		if !ok {
			logger.Warn("exam %s: question %s missing from the exam", d.ID, eq.QuestionID)
			continue
		}
		q, err := fromWire(wq, len(out))
		if err != nil {
			logger.Warn("exam %s: %v", d.ID, err)
			continue
		}
		out = append(out, q)
	}
	return out
}

// Replicate starts a new exam with the questions of examID.
func (c *Controller) Replicate(ctx context.Context, examID string) (Snapshot, error) {
	c.mu.Lock()
	gen := c.gen
	count := defaultReplicCount
	if d := c.app.Details.Get(); d != nil && d.TotalQuestions > 0 {
		count = d.TotalQuestions
	}
	prev := c.app.Config.Get()
	c.mu.Unlock()

	user := c.userID()
	created, err := c.exams.CreateExam(ctx, examapi.ExamCreateRequest{UserID: user, ExamReplicID: examID, QuestionCount: count})
	if err != nil {
		return Snapshot{}, fmt.Errorf("replicate exam %s: %w", examID, err)
	}
	ex, err := c.exams.GetExam(ctx, created.ExamID, user)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load replica %s: %w", created.ExamID, err)
	}
	qs := convertQuestions(ex.Questions)
	if len(qs) == 0 {
		return Snapshot{}, fmt.Errorf("replica %s has no questions", created.ExamID)
	}
	cfg := &Config{TotalQuestions: len(qs), TimeLimit: c.opts.DefaultTimeLimit}
	if prev != nil {
		cfg.Description = prev.Description
		cfg.TimeLimit = prev.TimeLimit
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return Snapshot{}, ErrSessionChanged
	}
	if err := c.enterLocked(ctx, created.ExamID, qs, cfg, nil); err != nil {
		return Snapshot{}, err
	}
	return c.snapshotLocked(), nil
}

func (c *Controller) ListExams(ctx context.Context, opts examapi.ListOptions) (examapi.UserExamsPage, error) {
	return c.exams.ListUserExams(ctx, c.userID(), opts)
}

func (c *Controller) Totalizers(ctx context.Context) (examapi.ExamTotalizers, error) {
	return c.exams.GetUserTotalizers(ctx, c.userID())
}

func (c *Controller) DeleteExam(ctx context.Context, examID string) (examapi.DeleteResponse, error) {
	return c.exams.DeleteExam(ctx, examID, c.userID())
}
