package models

import (
	"time"
)

// AnalysisRun is one processing attempt of an analysis message
type AnalysisRun struct {
	ID          string     `gorm:"type:uuid;primaryKey"`
	MessageID   string     `gorm:"type:text;not null;index"`
	VideoURI    string     `gorm:"column:video_uri;type:text;not null"`
	TargetField string     `gorm:"type:text;not null"`
	UserID      string     `gorm:"type:text"`
	VideoID     string     `gorm:"type:text;index"`
	Status      string     `gorm:"type:text;not null"`
	Error       string     `gorm:"type:text"`
	StartedAt   time.Time  `gorm:"type:timestamp with time zone;not null"`
	FinishedAt  *time.Time `gorm:"type:timestamp with time zone"`

	// Relationships
	Frames []AnalysisFrame `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

// TableName overrides the table name
func (AnalysisRun) TableName() string {
	return "analysis_runs"
}

// AnalysisFrame is a source frame index sampled during a run
type AnalysisFrame struct {
	ID         int    `gorm:"primaryKey;autoIncrement"`
	RunID      string `gorm:"type:uuid;not null;index"`
	FrameIndex int    `gorm:"not null"`
}

// TableName overrides the table name
func (AnalysisFrame) TableName() string {
	return "analysis_frames"
}
