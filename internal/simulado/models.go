package simulado

import (
	"errors"
	"fmt"

	"github.com/genem/simulado/internal/examapi"
)

// Phase is the screen the session is on.
type Phase string

const (
	PhaseBuilder         Phase = "builder"
	PhaseSimulado        Phase = "simulado"
	PhaseResults         Phase = "results"
	PhaseHistory         Phase = "history"
	PhaseViewHistoryExam Phase = "viewHistoryExam"
	PhaseProfile         Phase = "profile"
)

var (
	ErrInvalidConfig        = errors.New("invalid simulado config")
	ErrNotAnswering         = errors.New("no simulado is being answered")
	ErrFinalizeInProgress   = errors.New("finalize already in progress")
	ErrFinalize             = errors.New("could not finish the simulado")
	ErrRestart              = errors.New("could not start a new attempt")
	ErrGenerationInProgress = errors.New("a simulado is already being generated")
	ErrUnknownQuestion      = errors.New("question not in the current simulado")
	ErrInvalidAnswer        = errors.New("alternative out of range")
	ErrInvalidTransition    = errors.New("transition not allowed from the current phase")
	ErrSessionChanged       = errors.New("session changed while the request was in flight")
)

// Config is what the builder produces.
type Config struct {
	Description    string   `json:"description"`
	TotalQuestions int      `json:"totalQuestions"`
	TimeLimit      int      `json:"timeLimit"` // minutes
	TopicIDs       []string `json:"topicIds"`
	Years          []int    `json:"years,omitempty"`
}

func (c Config) Validate() error {
	if c.TotalQuestions < 1 || c.TotalQuestions > examapi.MaxQuestionCount {
		return fmt.Errorf("%w: total questions must be between 1 and %d, got %d",
			ErrInvalidConfig, examapi.MaxQuestionCount, c.TotalQuestions)
	}
	if c.TimeLimit <= 0 {
		return fmt.Errorf("%w: time limit must be positive, got %d", ErrInvalidConfig, c.TimeLimit)
	}
	return nil
}

type Alternative struct {
	Letter     string `json:"letter"`
	Text       string `json:"text,omitempty"`
	Base64File string `json:"base64File,omitempty"`
}

// Question is the client view of a question. CorrectLetter is only known for
// offline placeholder sets; the service withholds it during an exam.
type Question struct {
	ID                       string        `json:"id"`
	Index                    int           `json:"index"`
	Title                    string        `json:"title"`
	Discipline               string        `json:"discipline"`
	Year                     int           `json:"year"`
	Context                  string        `json:"context"`
	AlternativesIntroduction string        `json:"alternativesIntroduction,omitempty"`
	Alternatives             []Alternative `json:"alternatives"`
	CorrectLetter            string        `json:"correctLetter,omitempty"`
}

// Letter returns the letter of alternative i.
func (q Question) Letter(i int) string {
	if i >= 0 && i < len(q.Alternatives) && q.Alternatives[i].Letter != "" {
		return q.Alternatives[i].Letter
	}
	return string(rune('A' + i))
}

// IndexOf returns the alternative carrying letter, or -1.
func (q Question) IndexOf(letter string) int {
	for i := range q.Alternatives {
		if q.Letter(i) == letter {
			return i
		}
	}
	return -1
}

// AnswerMap maps question id to the selected alternative index.
type AnswerMap map[string]int

func (a AnswerMap) clone() AnswerMap {
	out := make(AnswerMap, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Snapshot is a read-only view of the session.
type Snapshot struct {
	Phase            Phase                `json:"phase"`
	ExamID           string               `json:"exam_id"`
	Offline          bool                 `json:"offline"`
	Config           *Config              `json:"config,omitempty"`
	Questions        []Question           `json:"questions"`
	Answers          AnswerMap            `json:"answers"`
	Details          *examapi.ExamDetails `json:"details,omitempty"`
	RemainingSeconds int                  `json:"remaining_seconds"`
	PendingAnswers   int                  `json:"pending_answers"`
	Generating       bool                 `json:"generating"`
	Finalizing       bool                 `json:"finalizing"`
}
