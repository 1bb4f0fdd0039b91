package topicfilter

import (
	"context"
	"fmt"
	"slices"

	"github.com/genem/simulado/internal/examapi"
	"github.com/genem/simulado/internal/logger"
)

func (a *Aggregator) fieldLocked(field string) *fieldSel {
	f, ok := a.selection[field]
	if !ok {
		f = &fieldSel{areas: map[string]*areaSel{}}
		a.selection[field] = f
		a.fieldOrder = append(a.fieldOrder, field)
	}
	return f
}

func (f *fieldSel) area(code string) *areaSel {
	ar, ok := f.areas[code]
	if !ok {
		ar = &areaSel{general: map[string]*generalSel{}}
		f.areas[code] = ar
		f.order = append(f.order, code)
	}
	return ar
}

func (ar *areaSel) topic(code string) *generalSel {
	g, ok := ar.general[code]
	if !ok {
		g = &generalSel{}
		ar.general[code] = g
		ar.order = append(ar.order, code)
	}
	return g
}

// pruneLocked drops nodes that no longer select anything.
func (a *Aggregator) pruneLocked() {
	a.fieldOrder = slices.DeleteFunc(a.fieldOrder, func(fc string) bool {
		f := a.selection[fc]
		f.order = slices.DeleteFunc(f.order, func(ac string) bool {
			ar := f.areas[ac]
			ar.order = slices.DeleteFunc(ar.order, func(gc string) bool {
				g := ar.general[gc]
				if g.selected || len(g.specific) > 0 {
					return false
				}
				delete(ar.general, gc)
				return true
			})
			if ar.selected || len(ar.order) > 0 {
				return false
			}
			delete(f.areas, ac)
			return true
		})
		if f.selected || len(f.order) > 0 {
			return false
		}
		delete(a.selection, fc)
		return true
	})
}

// ToggleField marks a whole field selected or not and reports the resolved ids.
func (a *Aggregator) ToggleField(ctx context.Context, field string, checked bool) ([]string, error) {
	a.mu.Lock()
	a.fieldLocked(field).selected = checked
	a.pruneLocked()
	a.mu.Unlock()
	return a.changed(ctx)
}

func (a *Aggregator) ToggleArea(ctx context.Context, field, area string, checked bool) ([]string, error) {
	a.mu.Lock()
	a.fieldLocked(field).area(area).selected = checked
	a.pruneLocked()
	a.mu.Unlock()
	return a.changed(ctx)
}

func (a *Aggregator) ToggleGeneralTopic(ctx context.Context, field, area, general string, checked bool) ([]string, error) {
	a.mu.Lock()
	a.fieldLocked(field).area(area).topic(general).selected = checked
	a.pruneLocked()
	a.mu.Unlock()
	return a.changed(ctx)
}

func (a *Aggregator) ToggleSpecificTopic(ctx context.Context, field, area, general, specific string, checked bool) ([]string, error) {
	a.mu.Lock()
	g := a.fieldLocked(field).area(area).topic(general)
	has := slices.Contains(g.specific, specific)
	switch {
	case checked && !has:
		g.specific = append(g.specific, specific)
	case !checked && has:
		g.specific = slices.DeleteFunc(g.specific, func(s string) bool { return s == specific })
	}
	a.pruneLocked()
	a.mu.Unlock()
	return a.changed(ctx)
}

// Clear drops every selection. Cached hierarchy levels are kept.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	a.selection = map[string]*fieldSel{}
	a.fieldOrder = nil
	a.version++
	a.mu.Unlock()
	if a.onChange != nil {
		a.onChange([]string{})
	}
}

// SelectedCount counts checked nodes at every level.
func (a *Aggregator) SelectedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, f := range a.selection {
		if f.selected {
			n++
		}
		for _, ar := range f.areas {
			if ar.selected {
				n++
			}
			for _, g := range ar.general {
				if g.selected {
					n++
				}
				n += len(g.specific)
			}
		}
	}
	return n
}

// planLocked lists one filter per leaf-equivalent selection. A selected node
// subsumes everything below it.
func (a *Aggregator) planLocked() []examapi.TopicFilter {
	var out []examapi.TopicFilter
	for _, fc := range a.fieldOrder {
		f := a.selection[fc]
		if f.selected {
			out = append(out, examapi.TopicFilter{FieldCode: fc})
			continue
		}
		for _, ac := range f.order {
			ar := f.areas[ac]
			if ar.selected {
				out = append(out, examapi.TopicFilter{FieldCode: fc, AreaCode: ac})
				continue
			}
			for _, gc := range ar.order {
				g := ar.general[gc]
				if g.selected {
					out = append(out, examapi.TopicFilter{FieldCode: fc, AreaCode: ac, GeneralTopicCode: gc})
					continue
				}
				for _, s := range g.specific {
					out = append(out, examapi.TopicFilter{FieldCode: fc, AreaCode: ac, GeneralTopicCode: gc, SpecificTopic: s})
				}
			}
		}
	}
	return out
}

// Resolve searches every leaf-equivalent selection and returns the ids found,
// without duplicates, in first-seen order.
func (a *Aggregator) Resolve(ctx context.Context) ([]string, error) {
	a.mu.Lock()
	plan := a.planLocked()
	a.mu.Unlock()
	return a.resolve(ctx, plan)
}

func (a *Aggregator) resolve(ctx context.Context, plan []examapi.TopicFilter) ([]string, error) {
	seen := map[string]bool{}
	ids := []string{}
	for _, f := range plan {
		topics, err := a.search.SearchQuestionTopics(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("resolve topics %+v: %w", f, err)
		}
		for _, t := range topics {
			if !seen[t.ID] {
				seen[t.ID] = true
				ids = append(ids, t.ID)
			}
		}
	}
	return ids, nil
}

// changed resolves after a toggle and reports the result unless a newer
// toggle has happened meanwhile.
func (a *Aggregator) changed(ctx context.Context) ([]string, error) {
	a.mu.Lock()
	a.version++
	v := a.version
	plan := a.planLocked()
	a.mu.Unlock()

	ids, err := a.resolve(ctx, plan)
	if err != nil {
		logger.Warn("topic filter: %v", err)
		return nil, err
	}
	a.mu.Lock()
	current := a.version == v
	a.mu.Unlock()
	if current && a.onChange != nil {
		a.onChange(ids)
	}
	return ids, nil
}
