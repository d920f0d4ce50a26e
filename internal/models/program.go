package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

type ProgramKind string

const (
	ProgramWorkout     ProgramKind = "workout"
	ProgramNutrition   ProgramKind = "nutrition"
	ProgramFlexibility ProgramKind = "flexibility"
)

var ProgramKinds = []ProgramKind{ProgramWorkout, ProgramNutrition, ProgramFlexibility}

type Program struct {
	ID             string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID         string `gorm:"column:user_id;type:uuid;index" json:"user_id"`
	ConversationID string `gorm:"column:conversation_id;type:uuid" json:"conversation_id"`
	ProgramName    string `gorm:"column:program_name;type:text" json:"program_name"`

	Workout     datatypes.JSON `gorm:"column:workout_program;type:jsonb" json:"workout"`
	Nutrition   datatypes.JSON `gorm:"column:nutrition_plan;type:jsonb" json:"nutrition"`
	Flexibility datatypes.JSON `gorm:"column:flexibility_program;type:jsonb" json:"flexibility"`

	RestDays pq.StringArray `gorm:"column:rest_days;type:text[]" json:"rest_days"`

	IsActive  bool      `gorm:"column:is_active;not null;default:true;index" json:"is_active"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
}

func (Program) TableName() string { return "programs" }
