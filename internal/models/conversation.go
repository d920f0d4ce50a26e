package models

import (
	"time"

	"gorm.io/datatypes"
)

// Flow distinguishes the two conversational variants sharing one engine.
type Flow string

const (
	FlowIntake        Flow = "intake"
	FlowProfileUpdate Flow = "profile_update"
)

func (f Flow) Valid() bool { return f == FlowIntake || f == FlowProfileUpdate }

const (
	RoleUserMsg      = "user"
	RoleAssistantMsg = "assistant"
)

type Message struct {
	Role      string    `json:"role"` // "user" | "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is one chat session. Messages are stored inline as a JSONB
// array; every write goes through a version check so appends never fork.
type Conversation struct {
	ID     string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID string `gorm:"column:user_id;type:uuid;index" json:"user_id"`
	Flow   Flow   `gorm:"column:flow;type:text;index" json:"flow"`

	Messages datatypes.JSONSlice[Message] `gorm:"column:messages;type:jsonb" json:"messages"`

	Completed bool `gorm:"column:completed;not null;default:false" json:"completed"`
	// Profile (intake) or ChangeSet (profile_update); null until completed.
	ExtractedData datatypes.JSON `gorm:"column:extracted_data;type:jsonb" json:"extracted_data,omitempty"`
	// AppliedAt is set once a profile_update change set has been merged.
	AppliedAt *time.Time `gorm:"column:applied_at;type:timestamptz" json:"applied_at,omitempty"`

	// ActiveKey is "<user_id>:<flow>" while not completed and NULL afterwards;
	// its unique index keeps at most one open conversation per user and flow.
	ActiveKey *string `gorm:"column:active_key;type:text;uniqueIndex" json:"-"`
	Version   int64   `gorm:"column:version;not null;default:0" json:"-"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (Conversation) TableName() string { return "conversations" }

func ActiveKey(userID string, flow Flow) string { return userID + ":" + string(flow) }

// Transcript returns the messages without timestamps, in order.
func (c *Conversation) Transcript() []Turn {
	out := make([]Turn, 0, len(c.Messages))
	for _, m := range c.Messages {
		out = append(out, Turn{Role: m.Role, Content: m.Content})
	}
	return out
}

// Turn is a message as the generation service sees it.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChangeSet is what extraction yields for a profile_update conversation.
type ChangeSet struct {
	Summary              string         `json:"summary" bson:"summary"`
	UpdateType           string         `json:"update_type" bson:"update_type"`
	SuggestsRegeneration bool           `json:"suggests_regeneration" bson:"suggests_regeneration"`
	Changes              map[string]any `json:"changes" bson:"changes"`
}
