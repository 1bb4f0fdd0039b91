package simulado

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/genem/simulado/internal/examapi"
	"github.com/genem/simulado/internal/logger"
)

const offlinePrefix = "offline-"

// IsOffline reports whether examID names a locally generated placeholder exam.
func IsOffline(examID string) bool { return strings.HasPrefix(examID, offlinePrefix) }

var errMalformedQuestion = errors.New("malformed question")

func fromWire(q examapi.QuestionForExam, index int) (Question, error) {
	if q.ID == "" {
		return Question{}, fmt.Errorf("%w: missing id", errMalformedQuestion)
	}
	if len(q.Alternatives) == 0 {
		return Question{}, fmt.Errorf("%w: %s has no alternatives", errMalformedQuestion, q.ID)
	}
	out := Question{
		ID:                       q.ID,
		Index:                    index,
		Title:                    fmt.Sprintf("Questão %d", index+1),
		Discipline:               q.Discipline,
		Year:                     q.Year,
		Context:                  q.Context,
		AlternativesIntroduction: q.AlternativesIntroduction,
	}
	for i, a := range q.Alternatives {
		letter := a.Letter
		if letter == "" {
			letter = string(rune('A' + i))
		}
		out.Alternatives = append(out.Alternatives, Alternative{Letter: letter, Text: a.Text, Base64File: a.Base64File})
	}
	return out, nil
}

// convertQuestions maps wire questions in order, skipping malformed ones.
func convertQuestions(in []examapi.QuestionForExam) []Question {
	out := make([]Question, 0, len(in))
	for _, q := range in {
		cq, err := fromWire(q, len(out))
		if err != nil {
			logger.Warn("skipping question: %v", err)
			continue
		}
		out = append(out, cq)
	}
	return out
}

var placeholderSubjects = []struct{ discipline, context string }{
	{"matematica", "Uma função afim f satisfaz f(1) = 3 e f(3) = 7. Qual o valor de f(5)?"},
	{"linguagens", "Leia o trecho e identifique a função de linguagem predominante."},
	{"ciencias-natureza", "Um corpo de 2 kg sobe 5 m em 10 s. Qual a potência média desenvolvida?"},
	{"ciencias-humanas", "Analise o processo de urbanização brasileiro no século XX."},
}

// placeholderQuestions builds a local exam of exactly cfg.TotalQuestions
// questions, used when the exam service cannot deliver one.
func placeholderQuestions(cfg Config) (string, []Question) {
	year := time.Now().Year() - 1
	qs := make([]Question, cfg.TotalQuestions)
	for i := range qs {
		s := placeholderSubjects[i%len(placeholderSubjects)]
		qs[i] = Question{
			ID:         fmt.Sprintf("mock-%d", i+1),
			Index:      i,
			Title:      fmt.Sprintf("Questão %d", i+1),
			Discipline: s.discipline,
			Year:       year,
			Context:    s.context,
			Alternatives: []Alternative{
				{Letter: "A", Text: "Alternativa A"},
				{Letter: "B", Text: "Alternativa B"},
				{Letter: "C", Text: "Alternativa C"},
				{Letter: "D", Text: "Alternativa D"},
				{Letter: "E", Text: "Alternativa E"},
			},
			CorrectLetter: string(rune('A' + i%5)),
		}
	}
	return offlinePrefix + uuid.NewString(), qs
}

// gradeOffline scores a placeholder exam locally.
func gradeOffline(examID, userID string, qs []Question, answers AnswerMap) examapi.ExamDetails {
	now := time.Now().UTC().Format(time.RFC3339)
	d := examapi.ExamDetails{
		ID:             examID,
		UserID:         userID,
		TotalQuestions: len(qs),
		Status:         examapi.StatusFinished,
		CreatedAt:      now,
		UpdatedAt:      now,
		FinishedAt:     now,
	}
	for _, q := range qs {
		eq := examapi.ExamQuestion{QuestionID: q.ID, CorrectAnswer: q.CorrectLetter}
		if idx, ok := answers[q.ID]; ok {
			eq.UserAnswer = q.Letter(idx)
			correct := eq.UserAnswer == q.CorrectLetter
			eq.IsCorrect = &correct
			if correct {
				d.TotalCorrectAnswers++
			} else {
				d.TotalWrongAnswers++
			}
		}
		d.Questions = append(d.Questions, eq)
	}
	return d
}

// answersFromDetails recovers selections from a server record.
func answersFromDetails(qs []Question, d examapi.ExamDetails) AnswerMap {
	byID := make(map[string]Question, len(qs))
	for _, q := range qs {
		byID[q.ID] = q
	}
	out := AnswerMap{}
	for _, eq := range d.Questions {
		q, ok := byID[eq.QuestionID]
		if !ok || eq.UserAnswer == "" {
			continue
		}
		if idx := q.IndexOf(eq.UserAnswer); idx >= 0 {
			out[q.ID] = idx
		}
	}
	return out
}
