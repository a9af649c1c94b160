package models

import "time"

// MediaBlob is one stored object of the database storage backend
type MediaBlob struct {
	Key         string    `gorm:"column:object_key;primaryKey;size:768"`
	MediaID     string    `gorm:"size:255;index"`
	ContentType string    `gorm:"size:128"`
	Size        int64     `gorm:"not null;default:0"`
	Data        []byte    `gorm:"type:longblob"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// TableName overrides the gorm table name
func (MediaBlob) TableName() string {
	return "media_blobs"
}
