package models

import (
	"time"

	"gorm.io/datatypes"
)

// Profile sections produced by intake extraction.
var ProfileSections = []string{
	"personal",
	"goals",
	"workout",
	"nutrition",
	"flexibility",
	"health",
	"psychology",
}

// Profile is the single current profile of a user. ConversationID points at
// the conversation that produced (or last updated) it. Version increases on
// every write.
type Profile struct {
	UserID         string         `gorm:"column:user_id;type:uuid;primaryKey" json:"user_id"`
	ConversationID string         `gorm:"column:conversation_id;type:uuid;index" json:"conversation_id"`
	Data           datatypes.JSON `gorm:"column:data;type:jsonb" json:"profile_data"`
	Version        int64          `gorm:"column:version;not null;default:1" json:"version"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (Profile) TableName() string { return "profiles" }
