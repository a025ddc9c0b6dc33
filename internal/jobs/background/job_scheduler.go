package background

import (
	"context"
	"log"
	"sync"
	"time"

	"meridian/internal/jobs"

	"github.com/go-co-op/gocron/v2"
)

// JobScheduler manages background jobs for the routing layer
type JobScheduler struct {
	scheduler  gocron.Scheduler
	summarySvc *jobs.UsageSummaryService
	archiver   *jobs.StatementArchiver
	jobJobs    map[string]gocron.Job
	mu         sync.RWMutex
}

// NewJobScheduler creates a new job scheduler. archiver may be nil when
// no object storage is configured; statement archival is then skipped.
func NewJobScheduler(summarySvc *jobs.UsageSummaryService, archiver *jobs.StatementArchiver) *JobScheduler {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}

	js := &JobScheduler{
		scheduler:  scheduler,
		summarySvc: summarySvc,
		archiver:   archiver,
		jobJobs:    make(map[string]gocron.Job),
	}

	js.registerJobs()

	return js
}

// Start starts the job scheduler
func (js *JobScheduler) Start() error {
	log.Printf("Starting background job scheduler")
	js.scheduler.Start()
	return nil
}

// Stop stops the job scheduler
func (js *JobScheduler) Stop() error {
	log.Printf("Stopping background job scheduler")
	return js.scheduler.Shutdown()
}

// registerJobs registers all background jobs
func (js *JobScheduler) registerJobs() {
	// Usage summary refresh - every 15 minutes
	summaryJob, err := js.scheduler.NewJob(
		gocron.DurationJob(15*time.Minute),
		gocron.NewTask(js.refreshUsageSummaries, context.Background()),
		gocron.WithName("usage-summary-refresh"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Printf("Failed to create usage summary job: %v", err)
	} else {
		js.jobJobs["usage-summary"] = summaryJob
	}

	// Statement archival - first day of each month, shortly after the
	// boundary and before the lazy reset rewrites counters.
	if js.archiver != nil {
		archiveJob, err := js.scheduler.NewJob(
			gocron.MonthlyJob(1, gocron.NewDaysOfTheMonth(1),
				gocron.NewAtTimes(gocron.NewAtTime(0, 30, 0))),
			gocron.NewTask(js.archiveStatements, context.Background()),
			gocron.WithName("statement-archival"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			log.Printf("Failed to create statement archival job: %v", err)
		} else {
			js.jobJobs["statement-archival"] = archiveJob
		}
	}

	log.Printf("Registered %d background jobs", len(js.jobJobs))
}

func (js *JobScheduler) refreshUsageSummaries(ctx context.Context) error {
	return js.summarySvc.RefreshAll(ctx)
}

func (js *JobScheduler) archiveStatements(ctx context.Context) error {
	return js.archiver.ArchivePreviousMonth(ctx)
}

// AddJob adds a custom job to the scheduler
func (js *JobScheduler) AddJob(name string, interval time.Duration, taskFn interface{}, params ...interface{}) error {
	js.mu.Lock()
	defer js.mu.Unlock()

	job, err := js.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(taskFn, params...),
		gocron.WithName(name),
	)
	if err != nil {
		return err
	}

	js.jobJobs[name] = job
	log.Printf("Added custom job: %s", name)
	return nil
}

// GetJobStatus returns information about scheduled jobs
func (js *JobScheduler) GetJobStatus() map[string]interface{} {
	js.mu.RLock()
	defer js.mu.RUnlock()

	jobs := make([]string, 0, len(js.jobJobs))
	for name := range js.jobJobs {
		jobs = append(jobs, name)
	}

	return map[string]interface{}{
		"total_jobs": len(js.jobJobs),
		"jobs":       jobs,
	}
}
