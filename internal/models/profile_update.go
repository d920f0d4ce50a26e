package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FieldChange is one entry of the audit diff between two profiles.
type FieldChange struct {
	Path   string `bson:"path" json:"path"`
	Before any    `bson:"before" json:"before"`
	After  any    `bson:"after" json:"after"`
}

// ProfileUpdate is the audit record of a confirmed profile update.
type ProfileUpdate struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	UpdateID       string             `bson:"update_id" json:"id"` // uuid v4
	UserID         string             `bson:"user_id" json:"user_id"`
	ConversationID string             `bson:"conversation_id" json:"conversation_id"`

	Messages   []Message     `bson:"messages" json:"messages"`
	ChangeSet  ChangeSet     `bson:"change_set" json:"change_set"`
	Diff       []FieldChange `bson:"diff" json:"diff"`
	UpdateType string        `bson:"update_type" json:"update_type"`

	RegenerationRequested bool       `bson:"regeneration_requested" json:"regeneration_requested"`
	ProgramsRegenerated   bool       `bson:"programs_regenerated" json:"programs_regenerated"`
	ProgramID             string     `bson:"program_id,omitempty" json:"program_id,omitempty"`
	RegeneratedAt         *time.Time `bson:"regenerated_at,omitempty" json:"regenerated_at,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
