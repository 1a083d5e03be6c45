// Package builder holds the working report configuration while a user
// assembles it. Every mutation is synchronous and re-runs validation
// immediately; there is no asynchronous validation step.
package builder

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"training-portal/reporting-engine/internal/report"
	"training-portal/reporting-engine/internal/report/validation"
)

// Store owns a single working ReportConfig plus its derived validation
// state. It is single-owner: only the UI-facing API below mutates it.
type Store struct {
	mu     sync.Mutex
	cfg    report.ReportConfig
	result *validation.Result
	now    func() time.Time
}

// FieldInput describes a field accepted from the field palette.
type FieldInput struct {
	Source      string
	Field       string
	Type        report.FieldType
	Name        string // display name; alias defaults to this, or to Field
	Category    string
	Aggregation report.Aggregation
}

// FieldPatch updates an existing field in place. Nil members are left alone.
type FieldPatch struct {
	Alias       *string
	Type        *report.FieldType
	Aggregation *report.Aggregation
	Category    *string
}

// FilterInput describes a new filter.
type FilterInput struct {
	Field    string
	Operator report.FilterOperator
	Value    any
}

// FilterPatch updates an existing filter in place.
type FilterPatch struct {
	Field    *string
	Operator *report.FilterOperator
	Value    *any
}

// NewStore creates an empty store. The initial configuration has no fields
// and is therefore invalid until the first field is added.
func NewStore() *Store {
	s := &Store{now: time.Now}
	s.result = validation.ValidateReportConfig(&s.cfg)
	return s
}

// AddField appends a field at the end of the configuration. See AddFieldAt
// for the duplicate-drop behavior.
func (s *Store) AddField(in FieldInput) report.Field {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addFieldAt(in, len(s.cfg.Fields))
}

// AddFieldAt inserts a field at the given drop position. If a field with
// the same source+field is already present, the existing field is moved to
// the drop position instead of being duplicated. This reordering-on-
// duplicate-drop is intentional UX, not duplicate-detection fallout; do not
// "fix" it without product sign-off.
func (s *Store) AddFieldAt(in FieldInput, position int) report.Field {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addFieldAt(in, position)
}

func (s *Store) addFieldAt(in FieldInput, position int) report.Field {
	defer s.revalidate()

	if position < 0 {
		position = 0
	}
	if position > len(s.cfg.Fields) {
		position = len(s.cfg.Fields)
	}

	for i, existing := range s.cfg.Fields {
		if existing.Source == in.Source && existing.Field == in.Field {
			moved := existing
			s.cfg.Fields = append(s.cfg.Fields[:i], s.cfg.Fields[i+1:]...)
			if position > len(s.cfg.Fields) {
				position = len(s.cfg.Fields)
			}
			s.cfg.Fields = append(s.cfg.Fields[:position],
				append([]report.Field{moved}, s.cfg.Fields[position:]...)...)
			return moved
		}
	}

	alias := in.Name
	if alias == "" {
		alias = in.Field
	}
	created := s.now()
	field := report.Field{
		ID:          report.NewFieldID(in.Source, in.Field, created),
		Source:      in.Source,
		Field:       in.Field,
		Type:        in.Type,
		Alias:       alias,
		Aggregation: in.Aggregation,
		Category:    in.Category,
	}
	s.cfg.Fields = append(s.cfg.Fields[:position],
		append([]report.Field{field}, s.cfg.Fields[position:]...)...)
	return field
}

// RemoveField removes a field by id. Removing an absent id is a no-op.
func (s *Store) RemoveField(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.revalidate()

	for i, f := range s.cfg.Fields {
		if f.ID == id {
			s.cfg.Fields = append(s.cfg.Fields[:i], s.cfg.Fields[i+1:]...)
			return
		}
	}
}

// UpdateField patches a field in place. It reports whether the id matched.
// The field id itself is never recomputed, even when source-related
// attributes change.
func (s *Store) UpdateField(id string, patch FieldPatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.revalidate()

	for i := range s.cfg.Fields {
		if s.cfg.Fields[i].ID != id {
			continue
		}
		if patch.Alias != nil {
			s.cfg.Fields[i].Alias = *patch.Alias
		}
		if patch.Type != nil {
			s.cfg.Fields[i].Type = *patch.Type
		}
		if patch.Aggregation != nil {
			s.cfg.Fields[i].Aggregation = *patch.Aggregation
		}
		if patch.Category != nil {
			s.cfg.Fields[i].Category = *patch.Category
		}
		return true
	}
	return false
}

// AddFilter appends a new filter.
func (s *Store) AddFilter(in FilterInput) report.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.revalidate()

	filter := report.Filter{
		ID:       uuid.NewString(),
		Field:    in.Field,
		Operator: in.Operator,
		Value:    in.Value,
	}
	s.cfg.Filters = append(s.cfg.Filters, filter)
	return filter
}

// RemoveFilter removes a filter by id. Removing an absent id is a no-op.
func (s *Store) RemoveFilter(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.revalidate()

	for i, f := range s.cfg.Filters {
		if f.ID == id {
			s.cfg.Filters = append(s.cfg.Filters[:i], s.cfg.Filters[i+1:]...)
			return
		}
	}
}

// UpdateFilter patches a filter in place. It reports whether the id matched.
func (s *Store) UpdateFilter(id string, patch FilterPatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.revalidate()

	for i := range s.cfg.Filters {
		if s.cfg.Filters[i].ID != id {
			continue
		}
		if patch.Field != nil {
			s.cfg.Filters[i].Field = *patch.Field
		}
		if patch.Operator != nil {
			s.cfg.Filters[i].Operator = *patch.Operator
		}
		if patch.Value != nil {
			s.cfg.Filters[i].Value = *patch.Value
		}
		return true
	}
	return false
}

// Replace swaps in a whole new configuration and re-validates.
func (s *Store) Replace(next report.ReportConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.revalidate()
	s.cfg = next
}

// Config returns a copy of the working configuration.
func (s *Store) Config() report.ReportConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.cfg
	cfg.Fields = append([]report.Field(nil), s.cfg.Fields...)
	cfg.Filters = append([]report.Filter(nil), s.cfg.Filters...)
	cfg.Grouping = append([]report.Group(nil), s.cfg.Grouping...)
	cfg.Sorting = append([]report.Sort(nil), s.cfg.Sorting...)
	return cfg
}

// Validation returns the result derived from the last mutation.
func (s *Store) Validation() *validation.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

func (s *Store) revalidate() {
	s.result = validation.ValidateReportConfig(&s.cfg)
}
