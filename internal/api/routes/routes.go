package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/yoockh/fitcoach/internal/api/handlers"
	"github.com/yoockh/fitcoach/internal/api/middleware"
	"github.com/yoockh/fitcoach/internal/auth"
)

type Deps struct {
	Tokens     *auth.Tokens
	Auth       *handlers.AuthHandler
	Intake     *handlers.IntakeHandler
	Profile    *handlers.ProfileHandler
	Program    *handlers.ProgramHandler
	Transcribe *handlers.TranscribeHandler
	Workout    *handlers.WorkoutHandler
	WS         *handlers.WSHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	r.POST("/auth/signup", d.Auth.Signup)
	r.POST("/auth/login", d.Auth.Login)

	// Protected routes (JWT)
	authed := r.Group("/")
	authed.Use(middleware.JWTAuth(d.Tokens))

	authed.GET("/auth/me", d.Auth.Me)
	authed.POST("/auth/verify", d.Auth.Me)

	authed.POST("/intake/start", d.Intake.Start)
	authed.POST("/intake/message", d.Intake.Message)
	authed.GET("/intake/:conversation_id", d.Intake.Get)

	authed.GET("/profile/current", d.Profile.Current)
	authed.POST("/profile/update/start", d.Profile.StartUpdate)
	authed.POST("/profile/update/message", d.Profile.UpdateMessage)
	authed.POST("/profile/update/confirm", d.Profile.ConfirmUpdate)
	authed.GET("/profile/updates", d.Profile.Updates)

	// Paths the web client used before the /profile/update move.
	legacyUpdate := authed.Group("/profile-update")
	legacyUpdate.GET("/current", d.Profile.Current)
	legacyUpdate.POST("/start", d.Profile.StartUpdate)
	legacyUpdate.POST("/message", d.Profile.UpdateMessage)
	legacyUpdate.POST("/confirm", d.Profile.ConfirmUpdate)

	authed.POST("/programs/generate", d.Program.Generate)
	authed.POST("/programs/generate/async", d.Program.GenerateAsync)
	authed.GET("/programs/active", d.Program.Active)
	authed.GET("/programs", d.Program.List)
	authed.GET("/programs/:program_id", d.Program.Get)

	for _, prefix := range []string{"/workouts", "/workout-log"} {
		w := authed.Group(prefix)
		w.POST("/start", d.Workout.Start)
		w.PUT("/:log_id/exercise", d.Workout.UpdateExercise)
		w.POST("/:log_id/complete", d.Workout.Complete)
		w.GET("/today", d.Workout.Today)
		w.GET("/recent", d.Workout.Recent)
	}

	authed.GET("/stats", d.Workout.Stats)
	authed.GET("/progress/stats", d.Workout.ProgressStats)
	authed.GET("/progress/progression", d.Workout.Progression)
	authed.GET("/progress/exercises", d.Workout.Exercises)
	authed.GET("/progress/history", d.Workout.History)

	authed.POST("/transcribe", d.Transcribe.Transcribe)

	admin := authed.Group("/admin", middleware.RequireAdmin())
	admin.GET("/users/:user_id/profile/updates", d.Profile.UserUpdates)

	// WebSocket
	authed.GET("/ws/programs", d.WS.Programs)
}
