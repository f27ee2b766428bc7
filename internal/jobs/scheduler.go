package jobs

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Job is a named unit of scheduled work.
type Job struct {
	Name    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Scheduler runs background jobs on fixed intervals or cron expressions.
type Scheduler struct {
	scheduler gocron.Scheduler
}

// NewScheduler creates an idle scheduler; jobs run after Start.
func NewScheduler() (*Scheduler, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Scheduler{scheduler: scheduler}, nil
}

// RegisterInterval schedules job to run every interval.
func (s *Scheduler) RegisterInterval(interval time.Duration, job Job) error {
	return s.register(gocron.DurationJob(interval), job)
}

// RegisterCron schedules job with a cron expression.
func (s *Scheduler) RegisterCron(cron string, job Job) error {
	return s.register(gocron.CronJob(cron, false), job)
}

func (s *Scheduler) register(def gocron.JobDefinition, job Job) error {
	_, err := s.scheduler.NewJob(
		def,
		gocron.NewTask(runFunc(job)),
		gocron.WithName(job.Name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	return err
}

// Start begins executing registered jobs.
func (s *Scheduler) Start() {
	log.Printf("Job scheduler starting with %d jobs", len(s.scheduler.Jobs()))
	s.scheduler.Start()
}

// Shutdown stops the scheduler and waits for running jobs.
func (s *Scheduler) Shutdown() error {
	log.Println("Job scheduler shutting down")
	return s.scheduler.Shutdown()
}

// runFunc wraps a job with timeout handling and outcome logging.
func runFunc(job Job) func() {
	return func() {
		ctx := context.Background()
		if job.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, job.Timeout)
			defer cancel()
		}

		startedAt := time.Now()
		if err := job.Run(ctx); err != nil {
			log.Printf("Job %s failed after %v: %v", job.Name, time.Since(startedAt), err)
		}
	}
}
