package domain

import (
	"fmt"
	"strings"
)

type Category string

const (
	CategoryAcademic   Category = "academic"
	CategoryEvents     Category = "events"
	CategoryFacilities Category = "facilities"
	CategoryLifestyle  Category = "lifestyle"
	CategoryGeneral    Category = "general"
)

var categories = []Category{
	CategoryAcademic,
	CategoryEvents,
	CategoryFacilities,
	CategoryLifestyle,
	CategoryGeneral,
}

// Categories lists the accepted categories in display order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// ParseCategory normalizes s. Empty input means general.
func ParseCategory(s string) (Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return CategoryGeneral, nil
	}
	for _, c := range categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// ParseCategoryFilter is ParseCategory for list queries, where empty means "all".
func ParseCategoryFilter(s string) (Category, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	return ParseCategory(s)
}
