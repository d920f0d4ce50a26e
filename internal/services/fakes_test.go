package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yoockh/fitcoach/internal/cache"
	"github.com/yoockh/fitcoach/internal/coach"
	"github.com/yoockh/fitcoach/internal/lock"
	"github.com/yoockh/fitcoach/internal/logger"
	"github.com/yoockh/fitcoach/internal/models"
	pgrepo "github.com/yoockh/fitcoach/internal/repositories/postgres"
	"github.com/yoockh/fitcoach/internal/utils"
	"gorm.io/datatypes"
)

// memStore stands in for postgres and mongo. Rows are copied in and out so
// callers never share memory with the store.
type memStore struct {
	mu       sync.Mutex
	convs    map[string]models.Conversation
	profiles map[string]models.Profile
	programs []models.Program
	updates  []models.ProfileUpdate
	users    map[string]models.User
	workouts []models.WorkoutLog
	stats    map[string]models.ProgressStats

	// onCreate runs before a conversation insert; tests use it to plant a
	// concurrent winner.
	onCreate func()
	// failAudit makes audit inserts fail.
	failAudit bool
	// onProfileRead runs after every profile read, outside the store lock.
	onProfileRead func(userID string)
}

func newMemStore() *memStore {
	return &memStore{
		convs:    map[string]models.Conversation{},
		profiles: map[string]models.Profile{},
		users:    map[string]models.User{},
		stats:    map[string]models.ProgressStats{},
	}
}

func copyConv(c models.Conversation) models.Conversation {
	c.Messages = append(datatypes.JSONSlice[models.Message]{}, c.Messages...)
	if c.ActiveKey != nil {
		k := *c.ActiveKey
		c.ActiveKey = &k
	}
	if c.AppliedAt != nil {
		t := *c.AppliedAt
		c.AppliedAt = &t
	}
	return c
}

// conversation repo

type memConvRepo struct{ s *memStore }

func (r memConvRepo) Create(ctx context.Context, c *models.Conversation) error {
	if r.s.onCreate != nil {
		hook := r.s.onCreate
		r.s.onCreate = nil
		hook()
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c.ActiveKey != nil {
		for _, other := range r.s.convs {
			if other.ActiveKey != nil && *other.ActiveKey == *c.ActiveKey {
				return utils.ErrConflict
			}
		}
	}
	r.s.convs[c.ID] = copyConv(*c)
	return nil
}

func (r memConvRepo) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.convs[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	out := copyConv(c)
	return &out, nil
}

func (r memConvRepo) FindActive(ctx context.Context, userID string, flow models.Flow) (*models.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := models.ActiveKey(userID, flow)
	for _, c := range r.s.convs {
		if c.ActiveKey != nil && *c.ActiveKey == key {
			out := copyConv(c)
			return &out, nil
		}
	}
	return nil, utils.ErrNotFound
}

func (r memConvRepo) cas(c *models.Conversation, apply func(row *models.Conversation)) error {
	row, ok := r.s.convs[c.ID]
	if !ok || row.Version != c.Version {
		return utils.ErrConflict
	}
	apply(&row)
	row.Version++
	row.UpdatedAt = time.Now().UTC()
	r.s.convs[c.ID] = row
	*c = copyConv(row)
	return nil
}

func (r memConvRepo) AppendMessages(ctx context.Context, c *models.Conversation, msgs ...models.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.cas(c, func(row *models.Conversation) {
		row.Messages = append(append(datatypes.JSONSlice[models.Message]{}, row.Messages...), msgs...)
	})
}

func (r memConvRepo) Complete(ctx context.Context, c *models.Conversation, reply models.Message, extracted []byte, profile *models.Profile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	err := r.cas(c, func(row *models.Conversation) {
		row.Messages = append(append(datatypes.JSONSlice[models.Message]{}, row.Messages...), reply)
		row.Completed = true
		row.ExtractedData = datatypes.JSON(extracted)
		row.ActiveKey = nil
	})
	if err != nil {
		return err
	}
	if profile != nil {
		profile.UpdatedAt = time.Now().UTC()
		r.s.putProfile(profile)
	}
	return nil
}

// putProfile stores p as the next version of the user's profile. Callers
// hold s.mu.
func (s *memStore) putProfile(p *models.Profile) {
	p.Version = s.profiles[p.UserID].Version + 1
	s.profiles[p.UserID] = *p
}

// profile repo

type memProfileRepo struct{ s *memStore }

func (r memProfileRepo) GetByUserID(ctx context.Context, userID string) (*models.Profile, error) {
	r.s.mu.Lock()
	p, ok := r.s.profiles[userID]
	hook := r.s.onProfileRead
	r.s.mu.Unlock()
	if !ok {
		return nil, utils.ErrNotFound
	}
	if hook != nil {
		hook(userID)
	}
	return &p, nil
}

func (r memProfileRepo) Upsert(ctx context.Context, p *models.Profile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.putProfile(p)
	return nil
}

func (r memProfileRepo) ApplyUpdate(ctx context.Context, p *models.Profile, conversationID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.convs[conversationID]
	if !ok || c.AppliedAt != nil {
		return utils.ErrConflict
	}
	if cur, ok := r.s.profiles[p.UserID]; !ok || cur.Version != p.Version {
		return utils.ErrStale
	}
	c.AppliedAt = &at
	r.s.convs[conversationID] = c
	p.UpdatedAt = at
	r.s.putProfile(p)
	return nil
}

// program repo

type memProgramRepo struct{ s *memStore }

func (r memProgramRepo) Create(ctx context.Context, p *models.Program) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.programs {
		if r.s.programs[i].UserID == p.UserID {
			r.s.programs[i].IsActive = false
		}
	}
	p.IsActive = true
	r.s.programs = append(r.s.programs, *p)
	return nil
}

func (r memProgramRepo) GetActive(ctx context.Context, userID string) (*models.Program, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := len(r.s.programs) - 1; i >= 0; i-- {
		if p := r.s.programs[i]; p.UserID == userID && p.IsActive {
			return &p, nil
		}
	}
	return nil, utils.ErrNotFound
}

func (r memProgramRepo) GetByID(ctx context.Context, id string) (*models.Program, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.programs {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, utils.ErrNotFound
}

func (r memProgramRepo) ListByUser(ctx context.Context, userID string, limit int) ([]models.Program, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Program
	for i := len(r.s.programs) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if r.s.programs[i].UserID == userID {
			out = append(out, r.s.programs[i])
		}
	}
	return out, nil
}

// audit repo

type memAuditRepo struct{ s *memStore }

func (r memAuditRepo) Insert(ctx context.Context, u *models.ProfileUpdate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failAudit {
		return context.DeadlineExceeded
	}
	r.s.updates = append(r.s.updates, *u)
	return nil
}

func (r memAuditRepo) MarkRegenerated(ctx context.Context, updateID, programID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.updates {
		if r.s.updates[i].UpdateID == updateID {
			r.s.updates[i].ProgramsRegenerated = true
			r.s.updates[i].ProgramID = programID
			r.s.updates[i].RegeneratedAt = &at
			return nil
		}
	}
	return utils.ErrNotFound
}

func (r memAuditRepo) ListByUser(ctx context.Context, userID string, limit int64) ([]models.ProfileUpdate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.ProfileUpdate
	for _, u := range r.s.updates {
		if u.UserID == userID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// user repo

type memUserRepo struct{ s *memStore }

func (r memUserRepo) Create(ctx context.Context, u *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, other := range r.s.users {
		if other.Email == u.Email {
			return utils.ErrConflict
		}
	}
	r.s.users[u.ID] = *u
	return nil
}

func (r memUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, utils.ErrNotFound
}

func (r memUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	return &u, nil
}

// workout repo

type memWorkoutRepo struct{ s *memStore }

func copyWorkout(w models.WorkoutLog) models.WorkoutLog {
	ex := make(datatypes.JSONSlice[models.ExerciseLog], len(w.Exercises))
	for i, e := range w.Exercises {
		e.SetsData = append([]map[string]any{}, e.SetsData...)
		ex[i] = e
	}
	w.Exercises = ex
	return w
}

func (r memWorkoutRepo) Create(ctx context.Context, w *models.WorkoutLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.workouts = append(r.s.workouts, copyWorkout(*w))
	return nil
}

func (r memWorkoutRepo) GetByID(ctx context.Context, id string) (*models.WorkoutLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, w := range r.s.workouts {
		if w.ID == id {
			out := copyWorkout(w)
			return &out, nil
		}
	}
	return nil, utils.ErrNotFound
}

func sameDay(d datatypes.Date, t time.Time) bool {
	return time.Time(d).Equal(models.Day(t))
}

func (r memWorkoutRepo) FindForDay(ctx context.Context, userID, programID string, date time.Time, dayName string) (*models.WorkoutLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := len(r.s.workouts) - 1; i >= 0; i-- {
		w := r.s.workouts[i]
		if w.UserID == userID && w.ProgramID == programID && w.DayName == dayName && sameDay(w.WorkoutDate, date) {
			out := copyWorkout(w)
			return &out, nil
		}
	}
	return nil, utils.ErrNotFound
}

func (r memWorkoutRepo) LastCompletedForDay(ctx context.Context, userID, dayName string) (*models.WorkoutLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := len(r.s.workouts) - 1; i >= 0; i-- {
		w := r.s.workouts[i]
		if w.UserID == userID && w.DayName == dayName && w.Completed {
			out := copyWorkout(w)
			return &out, nil
		}
	}
	return nil, utils.ErrNotFound
}

func (r memWorkoutRepo) SaveExercises(ctx context.Context, w *models.WorkoutLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.workouts {
		row := &r.s.workouts[i]
		if row.ID == w.ID && row.UserID == w.UserID && !row.Completed {
			row.Exercises = copyWorkout(*w).Exercises
			return nil
		}
	}
	return utils.ErrConflict
}

func (r memWorkoutRepo) Complete(ctx context.Context, w *models.WorkoutLog, at time.Time) (*models.ProgressStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.workouts {
		row := &r.s.workouts[i]
		if row.ID != w.ID || row.UserID != w.UserID || row.Completed {
			continue
		}
		row.Completed = true
		row.CompletedAt = &at
		if w.DurationMinutes != nil {
			row.DurationMinutes = w.DurationMinutes
		}
		if w.Notes != nil {
			row.Notes = w.Notes
		}
		st := r.s.stats[w.UserID]
		st.UserID = w.UserID
		st.RecordWorkout(at)
		r.s.stats[w.UserID] = st
		w.Completed = true
		return &st, nil
	}
	return nil, utils.ErrConflict
}

func (r memWorkoutRepo) ListRecent(ctx context.Context, userID string, since time.Time, limit int) ([]models.WorkoutLog, error) {
	if limit <= 0 {
		limit = 10
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.WorkoutLog
	for i := len(r.s.workouts) - 1; i >= 0 && len(out) < limit; i-- {
		w := r.s.workouts[i]
		if w.UserID == userID && !time.Time(w.WorkoutDate).Before(since) {
			out = append(out, copyWorkout(w))
		}
	}
	return out, nil
}

func (r memWorkoutRepo) ListCompleted(ctx context.Context, userID string) ([]models.WorkoutLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.WorkoutLog
	for _, w := range r.s.workouts {
		if w.UserID == userID && w.Completed {
			out = append(out, copyWorkout(w))
		}
	}
	return out, nil
}

func (r memWorkoutRepo) WeeklyActivity(ctx context.Context, userID string, since time.Time) ([]pgrepo.DayCount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []pgrepo.DayCount
	for _, w := range r.s.workouts {
		if w.UserID != userID || !w.Completed || time.Time(w.WorkoutDate).Before(since) {
			continue
		}
		if n := len(out); n > 0 && time.Time(out[n-1].WorkoutDate).Equal(time.Time(w.WorkoutDate)) {
			out[n-1].Count++
			continue
		}
		out = append(out, pgrepo.DayCount{WorkoutDate: w.WorkoutDate, Count: 1})
	}
	return out, nil
}

func (r memWorkoutRepo) GetStats(ctx context.Context, userID string) (*models.ProgressStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.stats[userID]
	st.UserID = userID
	return &st, nil
}

// fakeGen is a scripted coach.Generator.
type fakeGen struct {
	mu sync.Mutex

	opening    string
	openingErr error
	openings   int

	replies  []coach.Reply // consumed in order; defaults to a plain question
	replyErr error
	delay    time.Duration
	inReply  int
	maxReply int

	profile     map[string]any
	extractErr  error
	changes     *models.ChangeSet
	changesErr  error
	extractedOn []models.Turn

	programErr     map[models.ProgramKind]error
	programProfile map[string]any
}

func (g *fakeGen) Opening(ctx context.Context, flow models.Flow, profile map[string]any) (string, error) {
	if flow == models.FlowIntake {
		return coach.StarterMessage, nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.openings++
	if g.openingErr != nil {
		return "", g.openingErr
	}
	if g.opening == "" {
		return "What would you like to change?", nil
	}
	return g.opening, nil
}

func (g *fakeGen) Reply(ctx context.Context, flow models.Flow, transcript []models.Turn, profile map[string]any) (*coach.Reply, error) {
	g.mu.Lock()
	g.inReply++
	if g.inReply > g.maxReply {
		g.maxReply = g.inReply
	}
	g.mu.Unlock()

	if g.delay > 0 {
		time.Sleep(g.delay)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.inReply--
	if g.replyErr != nil {
		return nil, utils.E(utils.CodeUnavailable, "fakeGen.Reply", "generation service unavailable", g.replyErr)
	}
	if len(g.replies) == 0 {
		return &coach.Reply{Text: "Tell me more."}, nil
	}
	r := g.replies[0]
	g.replies = g.replies[1:]
	return &r, nil
}

func (g *fakeGen) ExtractProfile(ctx context.Context, transcript []models.Turn) (map[string]any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.extractedOn = transcript
	if g.extractErr != nil {
		return nil, utils.E(utils.CodeExtractionFailed, "fakeGen.ExtractProfile", "failed to extract structured data from conversation", g.extractErr)
	}
	doc := map[string]any{}
	for k, v := range g.profile {
		doc[k] = v
	}
	return coach.NormalizeProfile(doc), nil
}

func (g *fakeGen) ExtractChanges(ctx context.Context, transcript []models.Turn, profile map[string]any) (*models.ChangeSet, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.extractedOn = transcript
	if g.changesErr != nil {
		return nil, utils.E(utils.CodeExtractionFailed, "fakeGen.ExtractChanges", "failed to extract profile changes from conversation", g.changesErr)
	}
	return g.changes, nil
}

func (g *fakeGen) GenerateProgram(ctx context.Context, kind models.ProgramKind, profile map[string]any) (map[string]any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.programProfile = profile
	if err := g.programErr[kind]; err != nil {
		return nil, utils.E(utils.CodeUnavailable, "fakeGen.GenerateProgram", "generation service unavailable", err)
	}
	doc := map[string]any{"kind": string(kind)}
	if kind == models.ProgramWorkout {
		doc["program_name"] = "Strong Start"
		doc["rest_days"] = []any{"Wednesday", "Sunday"}
	}
	return doc, nil
}

// harness wires real services over the fakes.
type harness struct {
	store    *memStore
	gen      *fakeGen
	locker   lock.Locker
	profiles ProfileService
	convs    ConversationService
	programs ProgramService
	updates  ProfileUpdateService
	workouts *workoutService
	progress *progressService
}

func newHarness() *harness {
	s := newMemStore()
	g := &fakeGen{}
	log := logger.Discard()
	locker := lock.NewMemory()

	profiles := NewProfileService(memProfileRepo{s}, cache.Nop{}, time.Minute, log)
	programs := NewProgramService(memProgramRepo{s}, profiles, g, log)
	return &harness{
		store:    s,
		gen:      g,
		locker:   locker,
		profiles: profiles,
		convs:    NewConversationService(memConvRepo{s}, profiles, g, locker, time.Second, log),
		programs: programs,
		updates:  NewProfileUpdateService(memConvRepo{s}, memProfileRepo{s}, profiles, memAuditRepo{s}, programs, locker, time.Second, log),
		workouts: NewWorkoutService(memWorkoutRepo{s}, programs, locker, time.Second, log).(*workoutService),
		progress: NewProgressService(memWorkoutRepo{s}).(*progressService),
	}
}
