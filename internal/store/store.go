/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package store persists shows, segments and community interactions.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/friendsincode/tokencast/internal/models"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the durable record of show state.
type Store interface {
	NextShowNumber(ctx context.Context) (int, error)
	CreateShow(ctx context.Context, show *models.Show) error
	UpdateShow(ctx context.Context, show *models.Show) error
	GetShow(ctx context.Context, id string) (*models.Show, error)
	ListShows(ctx context.Context, limit int) ([]models.Show, error)
	FindLiveShows(ctx context.Context) ([]models.Show, error)

	CreateSegment(ctx context.Context, seg *models.Segment) error
	UpdateSegment(ctx context.Context, seg *models.Segment) error
	GetSegment(ctx context.Context, id string) (*models.Segment, error)
	ListSegments(ctx context.Context, showID string) ([]models.Segment, error)

	CreateInteraction(ctx context.Context, in *models.CommunityInteraction) error
	ListInteractions(ctx context.Context, showID string, since time.Time) ([]models.CommunityInteraction, error)
}

// GormStore implements Store on gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps db.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// NextShowNumber returns one more than the highest show number recorded.
func (s *GormStore) NextShowNumber(ctx context.Context) (int, error) {
	var max *int
	if err := s.db.WithContext(ctx).Model(&models.Show{}).Select("MAX(show_number)").Scan(&max).Error; err != nil {
		return 0, fmt.Errorf("next show number: %w", err)
	}
	if max == nil {
		return 1, nil
	}
	return *max + 1, nil
}

// CreateShow inserts a show.
func (s *GormStore) CreateShow(ctx context.Context, show *models.Show) error {
	if err := s.db.WithContext(ctx).Omit("Segments").Create(show).Error; err != nil {
		return fmt.Errorf("create show: %w", err)
	}
	return nil
}

// UpdateShow writes every column of an existing show.
func (s *GormStore) UpdateShow(ctx context.Context, show *models.Show) error {
	err := s.db.WithContext(ctx).Model(&models.Show{ID: show.ID}).
		Select("*").Omit("ID", "CreatedAt", "Segments").
		Updates(show).Error
	if err != nil {
		return fmt.Errorf("update show: %w", err)
	}
	return nil
}

// GetShow loads a show with its segments in order.
func (s *GormStore) GetShow(ctx context.Context, id string) (*models.Show, error) {
	var show models.Show
	err := s.db.WithContext(ctx).
		Preload("Segments", func(tx *gorm.DB) *gorm.DB { return tx.Order("segment_number ASC") }).
		First(&show, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get show: %w", err)
	}
	return &show, nil
}

// ListShows returns the most recent shows first.
func (s *GormStore) ListShows(ctx context.Context, limit int) ([]models.Show, error) {
	if limit <= 0 {
		limit = 20
	}
	var shows []models.Show
	if err := s.db.WithContext(ctx).Order("show_number DESC").Limit(limit).Find(&shows).Error; err != nil {
		return nil, fmt.Errorf("list shows: %w", err)
	}
	return shows, nil
}

// FindLiveShows returns shows still marked live.
func (s *GormStore) FindLiveShows(ctx context.Context) ([]models.Show, error) {
	var shows []models.Show
	if err := s.db.WithContext(ctx).Where("status = ?", models.ShowLive).Find(&shows).Error; err != nil {
		return nil, fmt.Errorf("find live shows: %w", err)
	}
	return shows, nil
}

// CreateSegment inserts a segment.
func (s *GormStore) CreateSegment(ctx context.Context, seg *models.Segment) error {
	if err := s.db.WithContext(ctx).Create(seg).Error; err != nil {
		return fmt.Errorf("create segment: %w", err)
	}
	return nil
}

// UpdateSegment writes every column of an existing segment.
func (s *GormStore) UpdateSegment(ctx context.Context, seg *models.Segment) error {
	err := s.db.WithContext(ctx).Model(&models.Segment{ID: seg.ID}).
		Select("*").Omit("ID", "CreatedAt").
		Updates(seg).Error
	if err != nil {
		return fmt.Errorf("update segment: %w", err)
	}
	return nil
}

// GetSegment loads one segment.
func (s *GormStore) GetSegment(ctx context.Context, id string) (*models.Segment, error) {
	var seg models.Segment
	err := s.db.WithContext(ctx).First(&seg, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get segment: %w", err)
	}
	return &seg, nil
}

// ListSegments returns a show's segments in order.
func (s *GormStore) ListSegments(ctx context.Context, showID string) ([]models.Segment, error) {
	var segs []models.Segment
	if err := s.db.WithContext(ctx).Where("show_id = ?", showID).Order("segment_number ASC").Find(&segs).Error; err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	return segs, nil
}

// CreateInteraction records audience input.
func (s *GormStore) CreateInteraction(ctx context.Context, in *models.CommunityInteraction) error {
	if err := s.db.WithContext(ctx).Create(in).Error; err != nil {
		return fmt.Errorf("create interaction: %w", err)
	}
	return nil
}

// ListInteractions returns a show's interactions received at or after since.
func (s *GormStore) ListInteractions(ctx context.Context, showID string, since time.Time) ([]models.CommunityInteraction, error) {
	var out []models.CommunityInteraction
	err := s.db.WithContext(ctx).
		Where("show_id = ? AND created_at >= ?", showID, since).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	return out, nil
}
