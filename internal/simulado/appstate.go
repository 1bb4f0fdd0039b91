package simulado

import (
	"context"
	"errors"

	"github.com/genem/simulado/internal/examapi"
	"github.com/genem/simulado/internal/state"
)

// AppState is the persisted session state shared by every entry point.
// Reset is the only way to clear it.
type AppState struct {
	Phase     *state.Value[Phase]
	Questions *state.Value[[]Question]
	Config    *state.Value[*Config]
	Details   *state.Value[*examapi.ExamDetails]
	ExamID    *state.Value[string]
	Answers   *state.Value[AnswerMap]
}

func LoadAppState(ctx context.Context, st state.Store) (*AppState, error) {
	a := &AppState{}
	var err error
	if a.Phase, err = state.NewValue(ctx, st, state.KeyAppState, PhaseBuilder); err != nil {
		return nil, err
	}
	if a.Questions, err = state.NewValue[[]Question](ctx, st, state.KeyCurrentSimulado, nil); err != nil {
		a.Close()
		return nil, err
	}
	if a.Config, err = state.NewValue[*Config](ctx, st, state.KeySimuladoConfig, nil); err != nil {
		a.Close()
		return nil, err
	}
	if a.Details, err = state.NewValue[*examapi.ExamDetails](ctx, st, state.KeyExamDetails, nil); err != nil {
		a.Close()
		return nil, err
	}
	if a.ExamID, err = state.NewValue(ctx, st, state.KeyExamID, ""); err != nil {
		a.Close()
		return nil, err
	}
	if a.Answers, err = state.NewValue[AnswerMap](ctx, st, state.KeyAnswers, nil); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Reset puts every value back to its initial state: builder phase and no
// questions, config, exam id, details or answers.
func (a *AppState) Reset(ctx context.Context) error {
	return errors.Join(
		a.Phase.Reset(ctx),
		a.Questions.Reset(ctx),
		a.Config.Reset(ctx),
		a.Details.Reset(ctx),
		a.ExamID.Reset(ctx),
		a.Answers.Reset(ctx),
	)
}

func (a *AppState) Close() {
	if a.Phase != nil {
		a.Phase.Close()
	}
	if a.Questions != nil {
		a.Questions.Close()
	}
	if a.Config != nil {
		a.Config.Close()
	}
	if a.Details != nil {
		a.Details.Close()
	}
	if a.ExamID != nil {
		a.ExamID.Close()
	}
	if a.Answers != nil {
		a.Answers.Close()
	}
}
