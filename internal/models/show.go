/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"github.com/friendsincode/tokencast/internal/rotation"
)

// ShowStatus is the lifecycle state of a show run.
type ShowStatus string

const (
	ShowScheduled ShowStatus = "scheduled"
	ShowLive      ShowStatus = "live"
	ShowCompleted ShowStatus = "completed"
)

// SegmentStatus is the lifecycle state of a segment.
type SegmentStatus string

const (
	SegmentPending   SegmentStatus = "pending"
	SegmentLive      SegmentStatus = "live"
	SegmentCompleted SegmentStatus = "completed"
)

// Show is one run of the rotating program.
type Show struct {
	ID               string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	ShowNumber       int        `gorm:"uniqueIndex:idx_shows_number;not null" json:"show_number"`
	Status           ShowStatus `gorm:"type:varchar(32);index:idx_shows_status;not null;default:'scheduled'" json:"status"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	EstimatedMinutes int        `gorm:"not null;default:60" json:"estimated_minutes"`
	AutoTransition   bool       `gorm:"not null;default:true" json:"auto_transition"`

	Rotation []rotation.Entry `gorm:"type:text;serializer:json" json:"rotation"`

	CurrentSegmentID       *string `gorm:"type:varchar(36)" json:"current_segment_id,omitempty"`
	CurrentIndex           int     `gorm:"not null;default:0" json:"current_index"`
	TotalSegmentsCompleted int     `gorm:"not null;default:0" json:"total_segments_completed"`

	Segments []Segment `gorm:"foreignKey:ShowID" json:"segments,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Show) TableName() string {
	return "shows"
}

// IsLive reports whether the show is on air.
func (s *Show) IsLive() bool {
	return s.Status == ShowLive
}

// Segment is one timed portion of a show.
type Segment struct {
	ID            string        `gorm:"type:varchar(36);primaryKey" json:"id"`
	ShowID        string        `gorm:"type:varchar(36);uniqueIndex:idx_segments_show_number;not null" json:"show_id"`
	SegmentNumber int           `gorm:"uniqueIndex:idx_segments_show_number;not null" json:"segment_number"`
	Kind          rotation.Kind `gorm:"type:varchar(64);index:idx_segments_kind;not null" json:"kind"`
	Status        SegmentStatus `gorm:"type:varchar(32);not null;default:'pending'" json:"status"`

	StartedAt      *time.Time `json:"started_at,omitempty"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	PlannedSeconds int        `gorm:"not null" json:"planned_seconds"`
	ActualSeconds  *float64   `json:"actual_seconds,omitempty"`

	SpeakerNotes string         `gorm:"type:text" json:"speaker_notes"`
	Content      SegmentContent `gorm:"type:text;serializer:json" json:"content"`

	Fallback        bool   `gorm:"not null;default:false" json:"fallback"`
	Degraded        bool   `gorm:"not null;default:false" json:"degraded"`
	GenerationError string `gorm:"type:text" json:"generation_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Segment) TableName() string {
	return "segments"
}

// PlannedDuration returns the planned length.
func (s *Segment) PlannedDuration() time.Duration {
	return time.Duration(s.PlannedSeconds) * time.Second
}

// SegmentContent is the structured portion of generator output.
type SegmentContent struct {
	VisualData    map[string]any   `json:"visual_data,omitempty"`
	Analyses      []map[string]any `json:"analyses,omitempty"`
	FeaturedItems []map[string]any `json:"featured_items,omitempty"`
	Metadata      map[string]any   `json:"metadata,omitempty"`
}
