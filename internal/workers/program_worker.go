package workers

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/fitcoach/internal/services"
	"github.com/yoockh/fitcoach/internal/utils"
)

const (
	DefaultStream = "program:stream"
	DefaultGroup  = "program-workers"
)

// Job status values pushed on StatusChannel.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

type JobStatus struct {
	Type      string `json:"type"` // always "program_job"
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	ProgramID string `json:"program_id,omitempty"`
}

func StatusChannel(userID string) string { return "programs:" + userID + ":status" }

// ProgramQueue enqueues background program generation.
type ProgramQueue struct {
	Redis  redis.UniversalClient
	Stream string
}

func (q *ProgramQueue) Enqueue(ctx context.Context, userID string) (string, error) {
	const op = "ProgramQueue.Enqueue"

	if q == nil || q.Redis == nil {
		return "", utils.E(utils.CodeUnavailable, op, "background jobs are not configured", nil)
	}
	stream := q.Stream
	if stream == "" {
		stream = DefaultStream
	}

	jobID := uuid.NewString()
	if err := q.Redis.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{
			"job_id":  jobID,
			"user_id": userID,
			"ts_unix": strconv.FormatInt(time.Now().UTC().Unix(), 10),
		},
	}).Err(); err != nil {
		return "", utils.E(utils.CodeUnavailable, op, "failed to enqueue program job", err)
	}

	publish(ctx, q.Redis, userID, JobStatus{JobID: jobID, Status: StatusQueued, Message: "program job queued"})
	return jobID, nil
}

type ProgramWorkerPool struct {
	Redis      redis.UniversalClient
	Programs   services.ProgramService
	NumWorkers int

	Logger logrus.FieldLogger

	Stream         string
	Group          string
	ConsumerPrefix string

	wg sync.WaitGroup
}

func (p *ProgramWorkerPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Programs == nil {
		return errors.New("ProgramWorkerPool missing dependency: Redis/Programs must be set")
	}
	if p.Stream == "" {
		p.Stream = DefaultStream
	}
	if p.Group == "" {
		p.Group = DefaultGroup
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "c"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 2
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}

	_ = p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err() // ignore BUSYGROUP

	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.runConsumer(ctx, consumer)
		}()
	}
	return nil
}

// Wait blocks until every consumer has returned after ctx cancellation.
func (p *ProgramWorkerPool) Wait() { p.wg.Wait() }

func (p *ProgramWorkerPool) runConsumer(ctx context.Context, consumer string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, ">"},
			Count:    1,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			p.Logger.WithError(err).Warn("xreadgroup failed")
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				p.handleMsg(ctx, msg)
				_ = p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err()
			}
		}
	}
}

type programJob struct {
	JobID  string
	UserID string
}

func parseJob(msg redis.XMessage) (programJob, bool) {
	getStr := func(k string) string {
		v, ok := msg.Values[k]
		if !ok || v == nil {
			return ""
		}
		s, _ := v.(string)
		return s
	}
	j := programJob{JobID: getStr("job_id"), UserID: getStr("user_id")}
	return j, j.JobID != "" && j.UserID != ""
}

func (p *ProgramWorkerPool) handleMsg(ctx context.Context, msg redis.XMessage) {
	job, ok := parseJob(msg)
	if !ok {
		p.Logger.WithField("redis_id", msg.ID).Warn("dropping malformed program job")
		return
	}

	publish(ctx, p.Redis, job.UserID, JobStatus{JobID: job.JobID, Status: StatusProcessing, Message: "generating program"})
	publish(ctx, p.Redis, job.UserID, p.process(ctx, job))
}

func (p *ProgramWorkerPool) process(ctx context.Context, job programJob) JobStatus {
	log := p.Logger.WithFields(logrus.Fields{"job_id": job.JobID, "user_id": job.UserID})

	start := time.Now()
	prog, err := p.Programs.Generate(ctx, job.UserID)
	if err != nil {
		log.WithError(err).Error("program job failed")
		msg := "program generation failed"
		var ae *utils.AppError
		if errors.As(err, &ae) && ae.Message != "" {
			msg = ae.Message
		}
		return JobStatus{JobID: job.JobID, Status: StatusFailed, Message: msg}
	}

	log.WithField("elapsed", time.Since(start).String()).Info("program job done")
	return JobStatus{JobID: job.JobID, Status: StatusDone, Message: "program ready", ProgramID: prog.ID}
}

func publish(ctx context.Context, rdb redis.UniversalClient, userID string, st JobStatus) {
	st.Type = "program_job"
	b, _ := json.Marshal(st)
	_ = rdb.Publish(ctx, StatusChannel(userID), string(b)).Err()
}
