// Package table implements the remote-paginated table controller behind the
// certificate list: query state, fetch coordination, search debouncing,
// display schema caching and full-dataset export.
package table

import (
	"errors"
	"slices"

	"github.com/leapstack-labs/certdesk/pkg/core"
)

// PageSizes are the page sizes a table accepts. The first one is the default.
var PageSizes = []int{5, 10, 25, 50}

// DefaultPageSize is the page size a freshly mounted table starts with.
var DefaultPageSize = PageSizes[0]

// Errors returned by state mutations.
var (
	ErrInvalidPage     = errors.New("page must not be negative")
	ErrInvalidPageSize = errors.New("page size must be one of 5, 10, 25, 50")
	ErrClosed          = errors.New("table controller closed")
)

// ValidPageSize reports whether n is an accepted page size.
func ValidPageSize(n int) bool {
	return slices.Contains(PageSizes, n)
}

// State is everything that decides which rows a table shows.
type State struct {
	Page        int
	PageSize    int
	SearchText  string
	Filter      core.Filter
	Sort        core.Sort
	StatusFacet int
}

// DefaultState is the state of a table at mount.
func DefaultState(facet int) State {
	return State{
		Page:        0,
		PageSize:    DefaultPageSize,
		StatusFacet: facet,
	}
}

// Equal reports whether two states would produce the same fetch.
func (s State) Equal(o State) bool {
	return s.Page == o.Page &&
		s.PageSize == o.PageSize &&
		s.SearchText == o.SearchText &&
		s.StatusFacet == o.StatusFacet &&
		s.Filter.Equal(o.Filter) &&
		s.Sort.Equal(o.Sort)
}

// Query converts the state into a paginated fetch request.
func (s State) Query() core.PageQuery {
	return core.PageQuery{
		Page:       s.Page,
		PageSize:   s.PageSize,
		SearchText: s.SearchText,
		Filter:     slices.Clone(s.Filter),
		Sort:       slices.Clone(s.Sort),
		Status:     core.FacetStatuses(s.StatusFacet),
	}
}

// ExportRequest converts the state into an export request. Pagination is dropped.
func (s State) ExportRequest() core.ExportRequest {
	return core.ExportRequest{
		Filter:     slices.Clone(s.Filter),
		Sort:       slices.Clone(s.Sort),
		SearchText: s.SearchText,
		Status:     core.FacetStatuses(s.StatusFacet),
	}
}

func (s State) clone() State {
	s.Filter = slices.Clone(s.Filter)
	s.Sort = slices.Clone(s.Sort)
	return s
}
