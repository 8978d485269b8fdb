package domain

import (
	"sort"
	"strings"

	dErrors "vitaex/pkg/domain-errors"
)

// DataCategory labels one class of personal data a consent grant can cover.
type DataCategory string

const (
	CategoryWearables       DataCategory = "wearables"
	CategoryLabs            DataCategory = "labs"
	CategoryQuestionnaires  DataCategory = "questionnaires"
	CategorySimulations     DataCategory = "simulations"
	CategoryProtocols       DataCategory = "protocols"
	CategoryRecommendations DataCategory = "recommendations"
)

var validDataCategories = map[DataCategory]bool{
	CategoryWearables:       true,
	CategoryLabs:            true,
	CategoryQuestionnaires:  true,
	CategorySimulations:     true,
	CategoryProtocols:       true,
	CategoryRecommendations: true,
}

// ParseDataCategory constructs a DataCategory from external input.
func ParseDataCategory(s string) (DataCategory, error) {
	c := DataCategory(strings.TrimSpace(s))
	if !validDataCategories[c] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid data category: "+s)
	}
	return c, nil
}

// Scope is a set of data categories. A grant's scope must be a superset of a
// task's required scope for the consent check to allow it.
type Scope map[DataCategory]struct{}

// NewScope builds a Scope from categories.
func NewScope(categories ...DataCategory) Scope {
	s := make(Scope, len(categories))
	for _, c := range categories {
		s[c] = struct{}{}
	}
	return s
}

// ParseScope validates and collects external category strings into a Scope.
func ParseScope(categories []string) (Scope, error) {
	if len(categories) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "scope must name at least one data category")
	}
	s := make(Scope, len(categories))
	for _, raw := range categories {
		c, err := ParseDataCategory(raw)
		if err != nil {
			return nil, err
		}
		s[c] = struct{}{}
	}
	return s, nil
}

// Contains reports whether s covers every category in required.
func (s Scope) Contains(required Scope) bool {
	for c := range required {
		if _, ok := s[c]; !ok {
			return false
		}
	}
	return true
}

// Categories returns the scope's categories in stable order.
func (s Scope) Categories() []DataCategory {
	out := make([]DataCategory, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings returns the scope's categories as strings in stable order, for
// serialization and audit detail.
func (s Scope) Strings() []string {
	cats := s.Categories()
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = string(c)
	}
	return out
}
