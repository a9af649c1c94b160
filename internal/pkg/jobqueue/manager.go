package jobqueue

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
)

// VariantWarmer derives preset variants of a media item
type VariantWarmer interface {
	Warm(ctx context.Context, id string, presets []string) error
}

// Manager owns the job queue and its handlers
type Manager struct {
	queue  *Queue
	warmer VariantWarmer
}

// NewManager wires the job handlers onto queue
func NewManager(queue *Queue) *Manager {
	m := &Manager{queue: queue}
	queue.Handle(JobTypeWarmVariants, m.processWarmVariantsJob)
	return m
}

// SetWarmer sets the variant warmer. The lifecycle service both enqueues warm-up jobs
// and executes them, so it is attached after construction.
func (m *Manager) SetWarmer(w VariantWarmer) {
	m.warmer = w
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

func (m *Manager) Start() {
	log.Info("[JobQueue Manager] Starting job queue")
	m.queue.Start()
}

func (m *Manager) Stop() {
	m.queue.Stop()
	log.Info("[JobQueue Manager] Stopped")
}

// Enqueue schedules a warm-up of presets for media id
func (m *Manager) Enqueue(ctx context.Context, id string, presets []string) error {
	if len(presets) == 0 {
		return nil
	}
	payload := WarmVariantsJobPayload{MediaID: id, Presets: presets}
	_, err := m.queue.EnqueueJob(ctx, JobTypeWarmVariants, payload.ToMap())
	return err
}

func (m *Manager) processWarmVariantsJob(ctx context.Context, job *Job) error {
	payload, err := WarmVariantsJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	if m.warmer == nil {
		return fmt.Errorf("no variant warmer configured")
	}
	return m.warmer.Warm(ctx, payload.MediaID, payload.Presets)
}
