package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoockh/fitcoach/internal/models"
	"github.com/yoockh/fitcoach/internal/services"
	"github.com/yoockh/fitcoach/internal/utils"
)

type stubConvs struct {
	services.ConversationService
	conv     *models.Conversation
	res      *services.SendResult
	err      error
	gotFlow  models.Flow
	gotText  string
	gotConvo string
}

func (s *stubConvs) Start(ctx context.Context, userID string, flow models.Flow) (*models.Conversation, error) {
	s.gotFlow = flow
	return s.conv, s.err
}

func (s *stubConvs) Send(ctx context.Context, userID string, flow models.Flow, conversationID, text string) (*services.SendResult, error) {
	s.gotFlow, s.gotConvo, s.gotText = flow, conversationID, text
	return s.res, s.err
}

func (s *stubConvs) Get(ctx context.Context, userID, conversationID string) (*models.Conversation, error) {
	return s.conv, s.err
}

type stubUpdates struct {
	services.ProfileUpdateService
	gotOverride   *models.ChangeSet
	gotRegenerate bool
	res           *services.ConfirmResult
	history       []models.ProfileUpdate
	gotUser       string
	gotLimit      int64
	err           error
}

func (s *stubUpdates) Confirm(ctx context.Context, userID, conversationID string, override *models.ChangeSet, regenerate bool) (*services.ConfirmResult, error) {
	s.gotOverride, s.gotRegenerate = override, regenerate
	return s.res, s.err
}

func (s *stubUpdates) History(ctx context.Context, userID string, limit int64) ([]models.ProfileUpdate, error) {
	s.gotUser, s.gotLimit = userID, limit
	return s.history, s.err
}

type stubQueue struct{ err error }

func (q stubQueue) Enqueue(ctx context.Context, userID string) (string, error) {
	return "job-1", q.err
}

type stubTranscriber struct {
	gotMime string
	gotLen  int
}

func (s *stubTranscriber) Transcribe(ctx context.Context, userID string, audio []byte, mimeType string) (*services.Transcript, error) {
	s.gotMime, s.gotLen = mimeType, len(audio)
	return &services.Transcript{Text: "hello coach"}, nil
}

func testRouter(register func(r gin.IRoutes)) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	g := r.Group("/", func(c *gin.Context) {
		if uid := c.GetHeader("X-Test-User"); uid != "" {
			c.Set("user_id", uid)
		}
		c.Next()
	})
	register(g)
	return r
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", "u-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIntakeStartAndMessage(t *testing.T) {
	convs := &stubConvs{
		conv: &models.Conversation{ID: "c-1", Flow: models.FlowIntake, Messages: []models.Message{{Role: "assistant", Content: "Hi"}}},
		res:  &services.SendResult{Reply: "Great!", Completed: true, Profile: map[string]any{"goals": nil}},
	}
	h := NewIntakeHandler(convs)
	r := testRouter(func(g gin.IRoutes) {
		g.POST("/intake/start", h.Start)
		g.POST("/intake/message", h.Message)
	})

	w := do(r, http.MethodPost, "/intake/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"conversation_id":"c-1","flow":"intake","messages":[{"role":"assistant","content":"Hi","timestamp":"0001-01-01T00:00:00Z"}],"completed":false,"extracted_data":null}`, w.Body.String())

	w = do(r, http.MethodPost, "/intake/message", map[string]string{"conversation_id": "c-1", "message": "done"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"response":"Great!","completed":true,"extracted_data":{"goals":null}}`, w.Body.String())
	assert.Equal(t, models.FlowIntake, convs.gotFlow)
	assert.Equal(t, "done", convs.gotText)

	w = do(r, http.MethodPost, "/intake/message", map[string]string{"conversation_id": "c-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestErrorStatusMapping(t *testing.T) {
	cases := map[utils.Code]int{
		utils.CodeInvalidState:     http.StatusConflict,
		utils.CodeExtractionFailed: http.StatusBadGateway,
		utils.CodeUnavailable:      http.StatusServiceUnavailable,
		utils.CodeForbidden:        http.StatusForbidden,
		utils.CodeNotFound:         http.StatusNotFound,
	}
	for code, status := range cases {
		convs := &stubConvs{err: utils.E(code, "op", "boom", nil)}
		h := NewIntakeHandler(convs)
		r := testRouter(func(g gin.IRoutes) { g.POST("/intake/message", h.Message) })

		w := do(r, http.MethodPost, "/intake/message", map[string]string{"conversation_id": "c-1", "message": "x"})
		assert.Equal(t, status, w.Code, code)

		var body APIError
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, code, body.Code)
		assert.Equal(t, "boom", body.Message)
	}
}

func TestMissingUserIsUnauthorized(t *testing.T) {
	h := NewIntakeHandler(&stubConvs{})
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/intake/start", h.Start)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/intake/start", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestConfirmUpdate(t *testing.T) {
	updates := &stubUpdates{res: &services.ConfirmResult{
		UpdateID:          "up-1",
		Profile:           map[string]any{"workout": map[string]any{"days_per_week": 5}},
		RegenerationError: "failed to generate programs",
	}}
	h := NewProfileHandler(nil, &stubConvs{}, updates)
	r := testRouter(func(g gin.IRoutes) { g.POST("/profile/update/confirm", h.ConfirmUpdate) })

	w := do(r, http.MethodPost, "/profile/update/confirm", map[string]any{
		"conversation_id":     "c-2",
		"regenerate_programs": true,
		"changes": map[string]any{
			"summary":     "train five days",
			"update_type": "schedule",
			"changes":     map[string]any{"workout": map[string]any{"days_per_week": 5}},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, updates.gotRegenerate)
	require.NotNil(t, updates.gotOverride)
	assert.Equal(t, "schedule", updates.gotOverride.UpdateType)
	assert.Equal(t, map[string]any{"workout": map[string]any{"days_per_week": float64(5)}}, updates.gotOverride.Changes)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "up-1", body["profile_update_id"])
	assert.Equal(t, false, body["programs_regenerated"])
	assert.Equal(t, "failed to generate programs", body["regeneration_error"])
}

func TestProgramAsync(t *testing.T) {
	h := NewProgramHandler(nil, stubQueue{})
	r := testRouter(func(g gin.IRoutes) { g.POST("/programs/generate/async", h.GenerateAsync) })

	w := do(r, http.MethodPost, "/programs/generate/async", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"job_id":"job-1","status":"queued"}`, w.Body.String())

	h = NewProgramHandler(nil, stubQueue{err: utils.E(utils.CodeUnavailable, "op", "background jobs are not configured", nil)})
	r = testRouter(func(g gin.IRoutes) { g.POST("/programs/generate/async", h.GenerateAsync) })
	w = do(r, http.MethodPost, "/programs/generate/async", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestTranscribeMultipart(t *testing.T) {
	svc := &stubTranscriber{}
	h := NewTranscribeHandler(svc)
	r := testRouter(func(g gin.IRoutes) { g.POST("/transcribe", h.Transcribe) })

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="audio"; filename="clip.webm"`)
	hdr.Set("Content-Type", "audio/webm")
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, _ = part.Write([]byte("fake-audio"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/transcribe", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Test-User", "u-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/webm", svc.gotMime)
	assert.Equal(t, len("fake-audio"), svc.gotLen)
	assert.JSONEq(t, `{"transcript":"hello coach","confidence":0}`, w.Body.String())

	// no file
	w = do(r, http.MethodPost, "/transcribe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateHistory(t *testing.T) {
	updates := &stubUpdates{}
	h := NewProfileHandler(nil, &stubConvs{}, updates)
	r := testRouter(func(g gin.IRoutes) {
		g.GET("/profile/updates", h.Updates)
		g.GET("/admin/users/:user_id/profile/updates", h.UserUpdates)
	})

	w := do(r, http.MethodGet, "/profile/updates", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"updates":[]}`, w.Body.String())
	assert.Equal(t, "u-1", updates.gotUser)
	assert.Equal(t, int64(20), updates.gotLimit)

	updates.history = []models.ProfileUpdate{{UpdateID: "up-1", UserID: "u-9", UpdateType: "goals"}}
	w = do(r, http.MethodGet, "/admin/users/u-9/profile/updates?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u-9", updates.gotUser)
	assert.Equal(t, int64(5), updates.gotLimit)

	var body struct {
		Updates []map[string]any `json:"updates"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Updates, 1)
	assert.Equal(t, "up-1", body.Updates[0]["id"])
	assert.Equal(t, "goals", body.Updates[0]["update_type"])
}

func TestProgramsSocketWithoutRedis(t *testing.T) {
	h := NewWSHandler(nil, nil)
	r := testRouter(func(g gin.IRoutes) { g.GET("/ws/programs", h.Programs) })

	w := do(r, http.MethodGet, "/ws/programs", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestConfirmUpdateChangeSetShape(t *testing.T) {
	updates := &stubUpdates{res: &services.ConfirmResult{UpdateID: "up-2"}}
	h := NewProfileHandler(nil, &stubConvs{}, updates)
	r := testRouter(func(g gin.IRoutes) { g.POST("/profile/update/confirm", h.ConfirmUpdate) })

	w := do(r, http.MethodPost, "/profile/update/confirm", map[string]any{
		"conversation_id": "c-3",
		"changes":         map[string]any{"changes": map[string]any{"goals": map[string]any{"weight_goal": "gain"}}},
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, updates.gotOverride)
	assert.Equal(t, map[string]any{"goals": map[string]any{"weight_goal": "gain"}}, updates.gotOverride.Changes)
	assert.NotContains(t, updates.gotOverride.Changes, "changes")
	assert.False(t, updates.gotRegenerate)

	// no override: the extracted change set is used
	updates.gotOverride = nil
	w = do(r, http.MethodPost, "/profile/update/confirm", map[string]any{"conversation_id": "c-3"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, updates.gotOverride)

	w = do(r, http.MethodPost, "/profile/update/confirm", map[string]any{
		"conversation_id": "c-3",
		"changes":         map[string]any{"changes": "gain weight"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
