package flasky

import (
	"context"
)

// Page is one slice of an ordered collection. Page numbering is
// 1-based. Out-of-range pages carry an empty item slice but report
// accurate totals and navigation flags, so callers never hard-fail on a
// stale page number.
type Page[T any] struct {
	Items    []T  `json:"items"`
	Number   int  `json:"page"`
	PerPage  int  `json:"per_page"`
	Total    int  `json:"total"`
	HasNext  bool `json:"has_next"`
	HasPrev  bool `json:"has_prev"`
	NextPage int  `json:"next_page,omitempty"`
	PrevPage int  `json:"prev_page,omitempty"`
}

// PageSource supplies a counted, ordered collection without loading it
// whole. Repository-backed feeds implement it with COUNT plus
// LIMIT/OFFSET queries.
type PageSource[T any] interface {
	Count(ctx context.Context) (int, error)
	Slice(ctx context.Context, offset, limit int) ([]T, error)
}

// Paginate slices an in-memory ordered collection.
func Paginate[T any](items []T, page, perPage int) Page[T] {
	if perPage < 1 {
		perPage = 1
	}

	total := len(items)
	slice := []T{}

	if page >= 1 {
		offset := (page - 1) * perPage
		if offset < total {
			end := offset + perPage
			if end > total {
				end = total
			}
			slice = items[offset:end]
		}
	}

	return newPage(slice, page, perPage, total)
}

// PaginateSource slices a counted source, fetching only the requested
// window.
func PaginateSource[T any](ctx context.Context, src PageSource[T], page, perPage int) (Page[T], error) {
	if perPage < 1 {
		perPage = 1
	}

	total, err := src.Count(ctx)
	if err != nil {
		return Page[T]{}, err
	}

	items := []T{}
	if page >= 1 {
		offset := (page - 1) * perPage
		if offset < total {
			items, err = src.Slice(ctx, offset, perPage)
			if err != nil {
				return Page[T]{}, err
			}
		}
	}

	return newPage(items, page, perPage, total), nil
}

func newPage[T any](items []T, page, perPage, total int) Page[T] {
	p := Page[T]{
		Items:   items,
		Number:  page,
		PerPage: perPage,
		Total:   total,
		HasNext: page*perPage < total,
		HasPrev: page > 1,
	}

	if p.HasNext {
		p.NextPage = page + 1
	}
	if p.HasPrev {
		p.PrevPage = page - 1
	}

	return p
}
