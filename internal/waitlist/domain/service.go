package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/directory/pkg/db/pagination"
)

type Service interface {
	Join(ctx context.Context, req JoinRequest) (*Position, error)
	NotifyNext(ctx context.Context, key Key) (*Entry, error)
	ExpireOffers(ctx context.Context) (int64, error)
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
}

type JoinRequest struct {
	BusinessID string `json:"businessId"`
	CategoryID string `json:"categoryId"`
	Plan       string `json:"plan"`
	Zone       string `json:"zone,omitempty"`
	Specialty  string `json:"specialty,omitempty"`
}

type Position struct {
	EntryID           string `json:"entryId"`
	Position          int    `json:"position"`
	EstimatedWaitDays int    `json:"estimatedWaitDays"`
}

type ListRequest struct {
	CategoryID string
	Plan       string
	Status     string
	PageToken  string
	PageSize   int
}

type ListResponse struct {
	Entries  []Entry             `json:"entries"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

var (
	ErrInvalidBusiness   = errors.New("invalid_business")
	ErrInvalidCategory   = errors.New("invalid_category")
	ErrInvalidPlan       = errors.New("invalid_plan")
	ErrInvalidStatus     = errors.New("invalid_status")
	ErrInvalidPageToken  = errors.New("invalid_page_token")
	ErrAlreadyWaitlisted = errors.New("already_waitlisted")
)
