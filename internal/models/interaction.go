package models

import "time"

// InteractionType classifies audience input.
type InteractionType string

const (
	InteractionComment  InteractionType = "comment"
	InteractionQuestion InteractionType = "question"
	InteractionMention  InteractionType = "token_mention"
	InteractionVote     InteractionType = "vote"
)

// CommunityInteraction is a piece of audience input received during a show.
type CommunityInteraction struct {
	ID        string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	ShowID    string          `gorm:"type:varchar(36);index:idx_interactions_show_time;not null" json:"show_id"`
	SegmentID *string         `gorm:"type:varchar(36)" json:"segment_id,omitempty"`
	UserID    string          `gorm:"type:varchar(128);not null" json:"user_id"`
	Type      InteractionType `gorm:"type:varchar(32);not null" json:"type"`
	Content   string          `gorm:"type:text" json:"content"`
	Metadata  map[string]any  `gorm:"type:text;serializer:json" json:"metadata,omitempty"`
	CreatedAt time.Time       `gorm:"index:idx_interactions_show_time" json:"created_at"`
}

// TableName returns the table name for GORM.
func (CommunityInteraction) TableName() string {
	return "community_interactions"
}

// ValidInteractionType reports whether t is known.
func ValidInteractionType(t InteractionType) bool {
	switch t {
	case InteractionComment, InteractionQuestion, InteractionMention, InteractionVote:
		return true
	}
	return false
}
