package coach

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yoockh/fitcoach/internal/models"
)

// Completion markers the coach emits when a conversation has what it needs.
const (
	IntakeSentinel = "INTAKE_COMPLETE"
	UpdateSentinel = "UPDATE_COMPLETE"
)

// StarterMessage opens every intake. It is fixed so starting an intake never
// waits on the generation service.
const StarterMessage = `Hello! I'm excited to be your fitness coach. I'll put together a complete plan for you: workouts, nutrition guidance and a flexibility routine to keep you moving well.

To build something that fits your life, I need to learn about you. Let's start with the big picture: what's the main fitness goal you want to reach? Losing weight, building muscle, getting stronger, more energy, or something else?`

const (
	intakeClosingLine = "I've got everything I need to create your personalized program. Let's build something great together!"
	updateClosingLine = "Got it! I've noted all your updates. Would you like me to regenerate your programs to reflect these changes?"

	// Some backends reject transcripts that start with an assistant turn.
	intakeOpener = "Hi, I'm ready to start my fitness consultation."
	updateOpener = "Hi, I'd like to update my fitness profile."
)

func Sentinel(flow models.Flow) string {
	if flow == models.FlowProfileUpdate {
		return UpdateSentinel
	}
	return IntakeSentinel
}

func ClosingLine(flow models.Flow) string {
	if flow == models.FlowProfileUpdate {
		return updateClosingLine
	}
	return intakeClosingLine
}

// StripSentinel removes every occurrence of the flow's marker and reports
// whether one was present.
func StripSentinel(flow models.Flow, text string) (string, bool) {
	marker := Sentinel(flow)
	if !strings.Contains(text, marker) {
		return strings.TrimSpace(text), false
	}
	return strings.TrimSpace(strings.ReplaceAll(text, marker, "")), true
}

const intakeSystemPrompt = `You are an experienced fitness coach, nutritionist and mobility specialist running an intake session.

After this conversation three programs will be built for the client: a weekly workout program, a nutrition plan and a flexibility routine. Collect what each needs:
- Workout: primary goal, experience level, days per week, minutes per session, equipment, exercises to avoid.
- Nutrition: approximate body weight, weight goal (lose, maintain, gain), dietary restrictions, meals per day, cooking ability, current habits.
- Flexibility: tight or painful areas, current stretching habits, injuries, job type and hours sitting.
- Also: age, medical conditions, past fitness attempts, motivation and accountability style.

Style: warm and professional, one focused question at a time, acknowledge answers, two or three sentences per reply.

When everything is covered, summarize what you learned and ask the client to confirm. Then ask one final question about any health conditions, injuries or circumstances not yet mentioned. After that answer, reply with exactly "` + IntakeSentinel + `".

Never mention that you are an AI.`

const updateSystemPromptHead = `You are the client's fitness coach helping them update their fitness profile.

Find out what changed (goals, schedule, equipment, weight, injuries, diet, anything else). Ask one focused question at a time and keep replies short. When you understand every change, summarize the changes, and once the client confirms reply with "` + UpdateSentinel + `".

Never mention that you are an AI.

The client's current profile:
`

func updateSystemPrompt(profile map[string]any) string {
	return updateSystemPromptHead + prettyJSON(profile)
}

func transcriptText(turns []models.Turn) string {
	var sb strings.Builder
	for _, t := range turns {
		sb.WriteString(t.Role)
		sb.WriteString(": ")
		sb.WriteString(t.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

const profileSchema = `{
  "personal": {"name": "string or null", "age": "number or null", "gender": "string or null", "current_weight_lbs": "number or null", "height": "string or null"},
  "goals": {"primary_goal": "string", "goal_reason": "string", "weight_goal": "lose|maintain|gain or null", "target_weight_lbs": "number or null"},
  "workout": {"experience_level": "beginner|intermediate|advanced", "days_per_week": "number", "minutes_per_session": "number", "preferred_time": "morning|afternoon|evening or null", "equipment_location": "home|gym|both|outdoor", "available_equipment": ["string"], "exercises_to_avoid": ["string"], "current_routine": "string or null"},
  "nutrition": {"meals_per_day": "number or null", "dietary_restrictions": ["string"], "cooking_ability": "none|basic|moderate|advanced or null", "meal_prep_willing": "boolean or null", "current_eating_habits": "string or null", "water_intake": "string or null"},
  "flexibility": {"problem_areas": ["string"], "current_stretching": "none|occasional|regular", "injuries": ["string"], "job_type": "sedentary|moderate|active", "hours_sitting_daily": "number or null"},
  "health": {"medical_conditions": ["string"], "medications": "string or null", "sleep_hours": "number or null", "stress_level": "low|moderate|high or null"},
  "psychology": {"past_fitness_attempts": "string", "what_worked": "string or null", "what_didnt_work": "string or null", "accountability_style": "self-motivated|needs-accountability|competitive or null"}
}`

func extractProfilePrompt(turns []models.Turn) string {
	return fmt.Sprintf(`Based on this fitness intake conversation, extract the client's information as structured JSON.

Conversation:
%s
Use null for anything that was not discussed and empty arrays for lists with no entries. Do not guess.
Return ONLY valid JSON with this shape:
%s`, transcriptText(turns), profileSchema)
}

func extractChangesPrompt(turns []models.Turn, profile map[string]any) string {
	return fmt.Sprintf(`A client and their coach discussed changes to the client's fitness profile.

Current profile:
%s

Conversation:
%s
Return ONLY valid JSON of this shape:
{
  "summary": "one or two sentences describing the changes",
  "update_type": "goals|schedule|equipment|weight|injury|nutrition|other",
  "suggests_regeneration": true,
  "changes": { "<section>": { "<field>": "<new value>" } }
}
"changes" holds only the fields that changed, using the section and field names of the current profile. Use null to clear a field. Lists are replaced whole, so give the complete new list.`, prettyJSON(profile), transcriptText(turns))
}

func programPrompt(kind models.ProgramKind, profile map[string]any) string {
	var shape string
	switch kind {
	case models.ProgramWorkout:
		shape = `{"program_name": "string", "duration_weeks": 8, "overview": "string", "weekly_schedule": [{"day": "Monday", "day_number": 1, "session_name": "string", "focus": "string", "duration_minutes": 45, "exercises": [{"name": "string", "sets": 3, "reps": "10-12", "weight": "string", "rest_seconds": 60, "notes": "string", "substitution": "string"}], "warmup": "string", "cooldown": "string"}], "rest_days": ["Sunday"], "progression_plan": "string", "tips": ["string"]}`
	case models.ProgramNutrition:
		shape = `{"plan_name": "string", "overview": "string", "daily_targets": {"calories": 2000, "protein_g": 150, "carbs_g": 200, "fat_g": 65, "fiber_g": 30, "water_oz": 80}, "calorie_explanation": "string", "meal_timing": {"meals_per_day": 3, "snacks_per_day": 1, "pre_workout": "string", "post_workout": "string"}, "sample_meals": [{"meal": "Breakfast", "time": "7:00 AM", "options": [{"name": "string", "description": "string", "calories": 450, "protein_g": 30, "prep_time_minutes": 10}]}], "grocery_staples": ["string"], "foods_to_limit": ["string"], "hydration_tips": ["string"], "practical_tips": ["string"]}`
	default:
		shape = `{"program_name": "string", "overview": "string", "frequency": "string", "total_time_minutes": 15, "routines": {"morning": {"name": "string", "duration_minutes": 5, "when": "string", "stretches": [{"name": "string", "target_area": "string", "hold_seconds": 30, "reps": 10, "instructions": "string", "breathing": "string", "modification": "string"}]}, "post_workout": {}, "evening": {}}, "desk_breaks": [{"name": "string", "frequency": "string", "duration_seconds": 30, "instructions": "string"}], "progression": "string", "tips": ["string"]}`
	}

	role := map[models.ProgramKind]string{
		models.ProgramWorkout:     "an expert personal trainer writing a weekly workout program",
		models.ProgramNutrition:   "a certified nutritionist writing a practical nutrition plan",
		models.ProgramFlexibility: "a mobility specialist writing a targeted flexibility routine",
	}[kind]

	return fmt.Sprintf(`You are %s for this client.

CLIENT DATA:
%s

Respect the client's schedule, equipment, restrictions and injuries. Return ONLY valid JSON in this structure:
%s`, role, prettyJSON(profile), shape)
}

func prettyJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
