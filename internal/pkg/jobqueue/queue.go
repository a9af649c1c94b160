package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// Redis key prefixes
	JobKeyPrefix     = "job:"
	JobQueueKey      = "job_queue"
	JobProcessingKey = "job_processing"
	JobStatsKey      = "job_stats"

	// Job settings
	DefaultMaxRetries = 3
	DefaultWorkers    = 3
	JobTTL            = 24 * time.Hour // Jobs expire after 24 hours

	localQueueSize = 256
)

// ErrQueueFull is returned when the in-process queue cannot take more jobs
var ErrQueueFull = errors.New("job queue is full")

// Handler processes one job. A returned error marks the job failed and schedules a retry
// while attempts remain.
type Handler func(ctx context.Context, job *Job) error

// Queue runs background jobs. With a Redis client jobs are persisted in Redis lists and
// shared between replicas; without one they are kept in an in-process channel.
type Queue struct {
	client     *redis.Client
	workers    int
	handlers   map[JobType]Handler
	local      chan *Job
	retryDelay time.Duration
	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
}

// NewQueue creates a new job queue. client may be nil.
func NewQueue(client *redis.Client, workers int) *Queue {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	return &Queue{
		client:     client,
		workers:    workers,
		handlers:   map[JobType]Handler{},
		local:      make(chan *Job, localQueueSize),
		retryDelay: time.Minute,
		stopCh:     make(chan struct{}),
	}
}

// Handle registers the handler for a job type. Register before Start.
func (q *Queue) Handle(jobType JobType, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobType] = h
}

// Distributed reports whether jobs go through Redis
func (q *Queue) Distributed() bool {
	return q.client != nil
}

// Start starts the job queue workers
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}

	q.running = true
	q.stopCh = make(chan struct{})
	log.Infof("[JobQueue] Starting %d workers (redis: %t)", q.workers, q.Distributed())

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	// recovers jobs stuck in processing due to crashes
	if q.Distributed() {
		q.wg.Add(1)
		go q.stuckSweeper(10*time.Minute, 1*time.Minute)
	}
}

// Stop stops the job queue workers
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	log.Info("[JobQueue] Stopping workers...")
	close(q.stopCh)
	q.running = false
	q.mu.Unlock()

	q.wg.Wait()
	log.Info("[JobQueue] All workers stopped")
}

// stuckSweeper periodically scans the processing list and requeues jobs stuck for longer than maxAge
func (q *Queue) stuckSweeper(maxAge time.Duration, interval time.Duration) {
	defer q.wg.Done()
	log.Infof("[JobQueue] Stuck sweeper running (maxAge=%s, interval=%s)", maxAge, interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ctx := context.Background()
	for {
		select {
		case <-q.stopCh:
			log.Info("[JobQueue] Stuck sweeper stopping")
			return
		case <-ticker.C:
			q.sweepStuck(ctx, maxAge)
		}
	}
}

func (q *Queue) sweepStuck(ctx context.Context, maxAge time.Duration) {
	ids, err := q.client.LRange(ctx, JobProcessingKey, 0, -1).Result()
	if err != nil {
		log.Errorf("[JobQueue] Sweeper LRange error: %v", err)
		return
	}
	now := time.Now()
	for _, id := range ids {
		job, err := q.GetJob(ctx, id)
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				log.Errorf("[JobQueue] Sweeper load error for %s: %v", id, err)
			}
			_ = q.client.LRem(ctx, JobProcessingKey, 1, id).Err()
			continue
		}
		if job.Status != JobStatusProcessing {
			_ = q.client.LRem(ctx, JobProcessingKey, 1, id).Err()
			continue
		}
		started := job.UpdatedAt
		if job.ProcessedAt != nil && !job.ProcessedAt.IsZero() {
			started = *job.ProcessedAt
		}
		if now.Sub(started) > maxAge {
			log.Warnf("[JobQueue] Recovering stuck job %s (type=%s), age=%s", job.ID, job.Type, now.Sub(started))
			job.Status = JobStatusPending
			job.ErrorMsg = "recovered by sweeper"
			job.UpdatedAt = now
			q.updateJob(ctx, job)
			_ = q.client.LRem(ctx, JobProcessingKey, 1, id).Err()
			_ = q.client.RPush(ctx, JobQueueKey, id).Err()
		}
	}
}

// worker processes jobs from the queue
func (q *Queue) worker(id int) {
	defer q.wg.Done()
	log.Infof("[JobQueue] Worker %d started", id)

	ctx := context.Background()
	for {
		select {
		case <-q.stopCh:
			log.Infof("[JobQueue] Worker %d stopping", id)
			return
		default:
		}

		job, err := q.dequeueJob(ctx)
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				log.Errorf("[JobQueue] Worker %d: Error dequeuing job: %v", id, err)
				time.Sleep(time.Second)
			}
			continue
		}
		if job != nil {
			log.Infof("[JobQueue] Worker %d processing job %s (Type: %s)", id, job.ID, job.Type)
			q.processJob(ctx, job)
		}
	}
}

// EnqueueJob adds a new job to the queue
func (q *Queue) EnqueueJob(ctx context.Context, jobType JobType, payload map[string]interface{}) (*Job, error) {
	now := time.Now()
	job := &Job{
		ID:         uuid.New().String(),
		Type:       jobType,
		Status:     JobStatusPending,
		Payload:    payload,
		CreatedAt:  now,
		UpdatedAt:  now,
		MaxRetries: DefaultMaxRetries,
	}

	if !q.Distributed() {
		select {
		case q.local <- job:
		default:
			return nil, ErrQueueFull
		}
		log.Infof("[JobQueue] Enqueued job %s (Type: %s)", job.ID, job.Type)
		return job, nil
	}

	jobData, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := q.client.Pipeline()
	pipe.Set(ctx, JobKeyPrefix+job.ID, jobData, JobTTL)
	pipe.LPush(ctx, JobQueueKey, job.ID)
	pipe.HIncrBy(ctx, JobStatsKey, string(JobStatusPending), 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	log.Infof("[JobQueue] Enqueued job %s (Type: %s)", job.ID, job.Type)
	return job, nil
}

// dequeueJob waits up to a second for the next job. An empty queue returns redis.Nil.
func (q *Queue) dequeueJob(ctx context.Context) (*Job, error) {
	if !q.Distributed() {
		select {
		case job := <-q.local:
			return job, nil
		case <-q.stopCh:
			return nil, redis.Nil
		case <-time.After(time.Second):
			return nil, redis.Nil
		}
	}

	// move job from pending queue to processing queue atomically
	jobID, err := q.client.BRPopLPush(ctx, JobQueueKey, JobProcessingKey, time.Second).Result()
	if err != nil {
		return nil, err
	}

	job, err := q.GetJob(ctx, jobID)
	if err != nil {
		q.client.LRem(ctx, JobProcessingKey, 1, jobID)
		return nil, fmt.Errorf("job data not found for ID %s: %w", jobID, err)
	}
	return job, nil
}

// processJob processes a single job
func (q *Queue) processJob(ctx context.Context, job *Job) {
	job.MarkAsProcessing()
	q.updateJob(ctx, job)

	q.mu.Lock()
	handler, ok := q.handlers[job.Type]
	q.mu.Unlock()

	var err error
	if ok {
		err = handler(ctx, job)
	} else {
		err = fmt.Errorf("unknown job type: %s", job.Type)
	}

	if err != nil {
		log.Errorf("[JobQueue] Job %s failed: %v", job.ID, err)
		job.MarkAsFailed(err.Error())

		if job.IsRetryable() {
			log.Infof("[JobQueue] Retrying job %s (Attempt %d/%d)", job.ID, job.RetryCount, job.MaxRetries)
			job.MarkAsRetrying()
			q.updateJob(ctx, job)
			q.scheduleRetry(ctx, job)
		} else {
			log.Errorf("[JobQueue] Job %s permanently failed after %d retries", job.ID, job.RetryCount)
			q.updateJob(ctx, job)
			q.updateJobStats(ctx, JobStatusFailed, 1)
		}
	} else {
		log.Infof("[JobQueue] Job %s completed successfully", job.ID)
		job.MarkAsCompleted()
		q.updateJobStats(ctx, JobStatusCompleted, 1)
		q.removeCompletedJob(ctx, job.ID)
	}
	q.removeFromProcessing(ctx, job.ID)
}

func (q *Queue) scheduleRetry(ctx context.Context, job *Job) {
	delay := q.retryDelay * time.Duration(job.RetryCount)
	time.AfterFunc(delay, func() {
		if !q.Distributed() {
			select {
			case q.local <- job:
			default:
				log.Errorf("[JobQueue] Dropping retry of job %s: %v", job.ID, ErrQueueFull)
			}
			return
		}
		if err := q.client.LPush(ctx, JobQueueKey, job.ID).Err(); err != nil {
			log.Errorf("[JobQueue] Failed to requeue job %s: %v", job.ID, err)
		}
	})
}

// updateJob updates job data in Redis
func (q *Queue) updateJob(ctx context.Context, job *Job) {
	if !q.Distributed() {
		return
	}
	jobData, err := json.Marshal(job)
	if err != nil {
		log.Errorf("[JobQueue] Failed to marshal job %s: %v", job.ID, err)
		return
	}
	if err := q.client.Set(ctx, JobKeyPrefix+job.ID, jobData, JobTTL).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to update job %s: %v", job.ID, err)
	}
}

// removeFromProcessing removes a job from the processing queue
func (q *Queue) removeFromProcessing(ctx context.Context, jobID string) {
	if !q.Distributed() {
		return
	}
	if err := q.client.LRem(ctx, JobProcessingKey, 1, jobID).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to remove job %s from processing queue: %v", jobID, err)
	}
}

// removeCompletedJob completely removes a completed job from Redis
func (q *Queue) removeCompletedJob(ctx context.Context, jobID string) {
	if !q.Distributed() {
		return
	}
	if err := q.client.Del(ctx, JobKeyPrefix+jobID).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to remove completed job %s from Redis: %v", jobID, err)
	}
}

// updateJobStats updates job statistics
func (q *Queue) updateJobStats(ctx context.Context, status JobStatus, delta int64) {
	if !q.Distributed() {
		return
	}
	if err := q.client.HIncrBy(ctx, JobStatsKey, string(status), delta).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to update job stats: %v", err)
	}
}

// GetJob retrieves a job by ID from Redis
func (q *Queue) GetJob(ctx context.Context, jobID string) (*Job, error) {
	if !q.Distributed() {
		return nil, redis.Nil
	}
	jobData, err := q.client.Get(ctx, JobKeyPrefix+jobID).Result()
	if err != nil {
		return nil, err
	}

	var job Job
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// GetQueueSize returns the number of pending jobs
func (q *Queue) GetQueueSize(ctx context.Context) (int64, error) {
	if !q.Distributed() {
		return int64(len(q.local)), nil
	}
	return q.client.LLen(ctx, JobQueueKey).Result()
}
