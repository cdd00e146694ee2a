package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/miguelavelar/loomchat-backend/pkg/db/models"
	"github.com/miguelavelar/loomchat-backend/pkg/enums"
	pkgerrors "github.com/miguelavelar/loomchat-backend/pkg/errors"
	"github.com/miguelavelar/loomchat-backend/pkg/pagination"
)

// ServiceParams groups dependencies for the usage service.
type ServiceParams struct {
	Repo Repository
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Service maintains the append-only usage ledger and serves reporting reads.
type Service struct {
	repo Repository
	now  func() time.Time
}

// RecordEventInput captures the immutable data a ledger event requires.
type RecordEventInput struct {
	UserID    uuid.UUID            `json:"user_id"`
	Tokens    int64                `json:"tokens"`
	Message   string               `json:"message"`
	Direction enums.UsageDirection `json:"direction"`
	SectionID *uuid.UUID           `json:"section_id,omitempty"`
}

// ListEventsParams configures the audit listing.
type ListEventsParams struct {
	UserID uuid.UUID
	Limit  int
	Cursor string
}

// ListEventsResult is one page of ledger events plus the follow-up cursor.
type ListEventsResult struct {
	Events     []models.UsageEvent `json:"events"`
	NextCursor string              `json:"next_cursor,omitempty"`
}

// NewService wires a usage service with the provided repository.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{repo: params.Repo, now: now}, nil
}

// RecordEvent appends one ledger row. Zero-token events are skipped rather
// than rejected; a model call that produced no output charges nothing.
func (s *Service) RecordEvent(ctx context.Context, input RecordEventInput) (*models.UsageEvent, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.Tokens < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tokens must not be negative")
	}
	if !input.Direction.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid usage direction %q", input.Direction))
	}
	if input.Tokens == 0 {
		return nil, nil
	}

	event := &models.UsageEvent{
		UserID:    input.UserID,
		Tokens:    input.Tokens,
		Message:   input.Message,
		Direction: input.Direction,
		SectionID: input.SectionID,
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// ListEvents returns a page of the user's ledger, newest first.
func (s *Service) ListEvents(ctx context.Context, params ListEventsParams) (*ListEventsResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	events, next, err := s.repo.ListByUser(ctx, ListEventsQuery{
		UserID: params.UserID,
		Limit:  params.Limit,
		Cursor: cursor,
	})
	if err != nil {
		return nil, err
	}

	result := &ListEventsResult{Events: events}
	if next != nil {
		result.NextCursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

// DailyUsage aggregates tokens per day over the trailing period. Days with no
// usage simply do not appear.
func (s *Service) DailyUsage(ctx context.Context, userID uuid.UUID, periodDays int) ([]DailyUsageRow, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if periodDays <= 0 {
		periodDays = 30
	}
	since := s.now().UTC().AddDate(0, 0, -periodDays)
	return s.repo.DailyTotals(ctx, userID, since)
}

// TotalTokensInPeriod sums the user's ledger over [from, to).
func (s *Service) TotalTokensInPeriod(ctx context.Context, userID uuid.UUID, from, to time.Time) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !to.After(from) {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "period end must follow period start")
	}
	return s.repo.TotalInPeriod(ctx, userID, from, to)
}

// PurgeUser removes all ledger rows for a deleted account.
func (s *Service) PurgeUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	return s.repo.DeleteByUser(ctx, userID)
}

// PurgeSection removes ledger rows tied to a deleted document section.
func (s *Service) PurgeSection(ctx context.Context, sectionID uuid.UUID) (int64, error) {
	if sectionID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "section id is required")
	}
	return s.repo.DeleteBySection(ctx, sectionID)
}
