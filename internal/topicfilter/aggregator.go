// Package topicfilter keeps a four level topic selection (field, area,
// general topic, specific topic) and resolves it to question topic ids.
package topicfilter

import (
	"context"
	"fmt"
	"sync"

	"github.com/genem/simulado/internal/examapi"
)

// Searcher looks up topics matching a filter. *examapi.Client satisfies it.
type Searcher interface {
	SearchQuestionTopics(ctx context.Context, f examapi.TopicFilter) ([]examapi.QuestionTopic, error)
}

// Node is one entry of a hierarchy level.
type Node struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type generalSel struct {
	selected bool
	specific []string
}

type areaSel struct {
	selected bool
	general  map[string]*generalSel
	order    []string
}

type fieldSel struct {
	selected bool
	areas    map[string]*areaSel
	order    []string
}

// Aggregator is safe for concurrent use. Hierarchy levels are fetched on
// first expansion and cached for the aggregator's lifetime.
type Aggregator struct {
	search   Searcher
	onChange func([]string)

	mu         sync.Mutex
	fields     []Node
	areas      map[string][]Node
	general    map[string][]Node
	specific   map[string][]string
	selection  map[string]*fieldSel
	fieldOrder []string
	version    uint64
}

// New returns an empty aggregator. onChange, when non-nil, receives the
// resolved ids after every toggle.
func New(search Searcher, onChange func([]string)) *Aggregator {
	return &Aggregator{
		search:    search,
		onChange:  onChange,
		areas:     map[string][]Node{},
		general:   map[string][]Node{},
		specific:  map[string][]string{},
		selection: map[string]*fieldSel{},
	}
}

func areaKey(field, area string) string             { return field + ":" + area }
func generalKey(field, area, general string) string { return field + ":" + area + ":" + general }

// LoadFields returns the distinct fields, loading them once.
func (a *Aggregator) LoadFields(ctx context.Context) ([]Node, error) {
	a.mu.Lock()
	if a.fields != nil {
		defer a.mu.Unlock()
		return a.fields, nil
	}
	a.mu.Unlock()

	topics, err := a.search.SearchQuestionTopics(ctx, examapi.TopicFilter{})
	if err != nil {
		return nil, fmt.Errorf("load fields: %w", err)
	}
	nodes := distinct(topics, func(t examapi.QuestionTopic) Node { return Node{Code: t.FieldCode, Name: t.Field} })

	a.mu.Lock()
	defer a.mu.Unlock()
	a.fields = nodes
	return nodes, nil
}

func (a *Aggregator) ExpandField(ctx context.Context, field string) ([]Node, error) {
	return a.level(ctx, a.areas, field, examapi.TopicFilter{FieldCode: field},
		func(t examapi.QuestionTopic) Node { return Node{Code: t.AreaCode, Name: t.Area} })
}

func (a *Aggregator) ExpandArea(ctx context.Context, field, area string) ([]Node, error) {
	return a.level(ctx, a.general, areaKey(field, area), examapi.TopicFilter{FieldCode: field, AreaCode: area},
		func(t examapi.QuestionTopic) Node { return Node{Code: t.GeneralTopicCode, Name: t.GeneralTopic} })
}

// ExpandGeneralTopic returns the specific topic names under a general topic.
func (a *Aggregator) ExpandGeneralTopic(ctx context.Context, field, area, general string) ([]string, error) {
	key := generalKey(field, area, general)
	a.mu.Lock()
	if cached, ok := a.specific[key]; ok {
		a.mu.Unlock()
		return cached, nil
	}
	a.mu.Unlock()

	topics, err := a.search.SearchQuestionTopics(ctx, examapi.TopicFilter{FieldCode: field, AreaCode: area, GeneralTopicCode: general})
	if err != nil {
		return nil, fmt.Errorf("load specific topics of %s: %w", key, err)
	}
	nodes := distinct(topics, func(t examapi.QuestionTopic) Node { return Node{Code: t.SpecificTopic, Name: t.SpecificTopic} })
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = n.Name
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.specific[key] = names
	return names, nil
}

func (a *Aggregator) level(ctx context.Context, cache map[string][]Node, key string, f examapi.TopicFilter, pick func(examapi.QuestionTopic) Node) ([]Node, error) {
	a.mu.Lock()
	if cached, ok := cache[key]; ok {
		a.mu.Unlock()
		return cached, nil
	}
	a.mu.Unlock()

	topics, err := a.search.SearchQuestionTopics(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("load children of %s: %w", key, err)
	}
	nodes := distinct(topics, pick)

	a.mu.Lock()
	defer a.mu.Unlock()
	cache[key] = nodes
	return nodes, nil
}

// distinct keeps the first occurrence of each code.
func distinct(topics []examapi.QuestionTopic, pick func(examapi.QuestionTopic) Node) []Node {
	seen := map[string]bool{}
	out := []Node{}
	for _, t := range topics {
		n := pick(t)
		if n.Code == "" || seen[n.Code] {
			continue
		}
		seen[n.Code] = true
		out = append(out, n)
	}
	return out
}
