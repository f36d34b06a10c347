package models

import (
	"time"
)

// ProcessedImage is the final studio deliverable for one selected candidate.
type ProcessedImage struct {
	ID      string `gorm:"primaryKey;column:id"`
	ItemID  string `gorm:"column:item_id;not null;index"`
	OrderID string `gorm:"column:order_id;not null;index"`

	// Storage reference
	StorageKey string `gorm:"column:storage_key;not null"`
	URL        string `gorm:"column:url;not null"`

	// Artifact metadata
	Width     int    `gorm:"column:width"`
	Height    int    `gorm:"column:height"`
	SizeBytes int    `gorm:"column:size_bytes"`
	SourceURL string `gorm:"column:source_url"`
	Store     string `gorm:"column:store"`

	// Scoring provenance
	QualityScore   int  `gorm:"column:quality_score"`
	WatermarkScore int  `gorm:"column:watermark_score"`
	Upscaled       bool `gorm:"column:upscaled;default:false"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
}

// TableName specifies the table name for the ProcessedImage model
func (ProcessedImage) TableName() string {
	return "processed_images"
}
