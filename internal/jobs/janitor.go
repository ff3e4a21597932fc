// Package jobs runs periodic housekeeping: expired phone verifications and
// idempotency keys are purged on a cron schedule.
package jobs

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/summerjobs-backend/internal/repo"
	"github.com/tbourn/summerjobs-backend/internal/services"
)

var purged = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "janitor_purged_total",
		Help: "Records removed by the janitor, by task.",
	},
	[]string{"task"},
)

func init() {
	prometheus.MustRegister(purged)
}

// Task removes stale records older than now and reports how many.
type Task struct {
	Name string
	Run  func(ctx context.Context, now time.Time) (int64, error)
}

// PurgeVerifications deletes expired or consumed phone verifications.
func PurgeVerifications(phone *services.PhoneService) Task {
	return Task{
		Name: "phone_verifications",
		Run: func(ctx context.Context, now time.Time) (int64, error) {
			n, err := phone.PurgeExpired(ctx, now)
			return int64(n), err
		},
	}
}

// PurgeIdempotency deletes idempotency records past their TTL.
func PurgeIdempotency(db *gorm.DB) Task {
	return Task{
		Name: "idempotency",
		Run: func(ctx context.Context, now time.Time) (int64, error) {
			return repo.PurgeExpiredIdempotency(ctx, db, now)
		},
	}
}

// Janitor runs its tasks on a cron schedule.
type Janitor struct {
	cron    *cron.Cron
	tasks   []Task
	timeout time.Duration
	now     func() time.Time
}

// NewJanitor schedules tasks with spec (standard five-field cron or
// descriptors such as "@every 10m").
func NewJanitor(spec string, tasks ...Task) (*Janitor, error) {
	j := &Janitor{
		cron:    cron.New(),
		tasks:   tasks,
		timeout: time.Minute,
		now:     func() time.Time { return time.Now().UTC() },
	}
	if _, err := j.cron.AddFunc(spec, func() { j.RunOnce(context.Background()) }); err != nil {
		return nil, err
	}
	return j, nil
}

// Start begins the schedule in the background.
func (j *Janitor) Start() {
	j.cron.Start()
	log.Info().Int("tasks", len(j.tasks)).Msg("janitor started")
}

// Stop halts the schedule and waits for a running pass to finish or ctx to
// expire.
func (j *Janitor) Stop(ctx context.Context) {
	select {
	case <-j.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// RunOnce executes every task once. A failing task is logged and does not
// stop the others. It returns the total number of removed records.
func (j *Janitor) RunOnce(ctx context.Context) int64 {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	now := j.now()
	var total int64
	for _, t := range j.tasks {
		n, err := t.Run(ctx, now)
		if err != nil {
			log.Error().Err(err).Str("task", t.Name).Msg("janitor task failed")
			continue
		}
		if n > 0 {
			purged.WithLabelValues(t.Name).Add(float64(n))
			log.Info().Str("task", t.Name).Int64("removed", n).Msg("janitor purged records")
		}
		total += n
	}
	return total
}
