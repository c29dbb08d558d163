// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recording

import (
	"context"
	"sort"
	"time"
)

// DefaultPageSize is used when List is called with a non-positive limit.
const DefaultPageSize = 100

// Filter narrows a List query. Zero values match everything.
type Filter struct {
	CameraID  string
	StartTime *time.Time // recordings that started at or after
	EndTime   *time.Time // recordings that started at or before
}

// Matches reports whether r satisfies the filter.
func (f Filter) Matches(r Recording) bool {
	if f.CameraID != "" && r.CameraID != f.CameraID {
		return false
	}
	if f.StartTime != nil && r.StartTime.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && r.StartTime.After(*f.EndTime) {
		return false
	}
	return true
}

// Page is one page of a List result. Page numbers start at 1.
type Page struct {
	Items   []Recording
	Total   int
	HasMore bool
}

// Store is the recording repository consumed by the core.
// GetByID returns (nil, nil) when the recording does not exist.
type Store interface {
	Add(ctx context.Context, rec Recording) error
	Update(ctx context.Context, rec Recording) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*Recording, error)
	List(ctx context.Context, filter Filter, page, limit int) (Page, error)
}

// Paginate filters items, orders them by StartTime then ID and cuts one page.
// Stores without query support use it to implement List.
func Paginate(items []Recording, filter Filter, page, limit int) Page {
	page, limit = NormalizePage(page, limit)
	matched := make([]Recording, 0, len(items))
	for _, r := range items {
		if filter.Matches(r) {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].StartTime.Equal(matched[j].StartTime) {
			return matched[i].StartTime.Before(matched[j].StartTime)
		}
		return matched[i].ID < matched[j].ID
	})

	out := Page{Total: len(matched)}
	start := (page - 1) * limit
	if start >= len(matched) {
		return out
	}
	end := min(start+limit, len(matched))
	out.Items = matched[start:end]
	out.HasMore = end < len(matched)
	return out
}

// NormalizePage clamps page to at least 1 and defaults limit.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	return page, limit
}
