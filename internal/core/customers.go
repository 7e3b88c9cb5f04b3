package core

import (
	"context"
	"fmt"
)

// Paging limits for customer listings.
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// CustomerLister is the read side of customer storage.
type CustomerLister interface {
	ListCustomers(ctx context.Context, limit, offset int) ([]Customer, error)
	CountCustomers(ctx context.Context) (int64, error)
}

// CustomerPage is one page of a customer listing.
type CustomerPage struct {
	Customers []Customer `json:"customers"`
	Total     int64      `json:"total"`
	Page      int        `json:"page"`
	PageSize  int        `json:"page_size"`
}

// ListCustomerPage fetches page (1-based) of the listing ordered by creation.
// Out-of-range page and pageSize values are clamped.
func ListCustomerPage(ctx context.Context, l CustomerLister, page, pageSize int) (*CustomerPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	total, err := l.CountCustomers(ctx)
	if err != nil {
		return nil, fmt.Errorf("count customers: %w", err)
	}

	customers, err := l.ListCustomers(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	if customers == nil {
		customers = []Customer{}
	}

	return &CustomerPage{
		Customers: customers,
		Total:     total,
		Page:      page,
		PageSize:  pageSize,
	}, nil
}
