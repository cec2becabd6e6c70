package rates

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// SyncJob refreshes the rate snapshot on a schedule so the first form of
// the day does not pay for the upstream round trips.
type SyncJob struct {
	service *Service
	timeout time.Duration
	log     zerolog.Logger
}

// NewSyncJob creates a new rate sync job
func NewSyncJob(service *Service, timeout time.Duration, log zerolog.Logger) *SyncJob {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &SyncJob{
		service: service,
		timeout: timeout,
		log:     log.With().Str("job", "rates_sync").Logger(),
	}
}

// Run executes one refresh
func (j *SyncJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	snap, refreshed, err := j.service.Refresh(ctx)
	if err != nil {
		j.log.Error().Err(err).Msg("Rate sync failed")
		return err
	}

	j.log.Info().
		Bool("refreshed", refreshed).
		Str("gold_bas_dt", snap.GoldBaseDate).
		Str("exchange_bas_dt", snap.ExchangeBaseDate).
		Msg("Rate sync completed")
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *SyncJob) Name() string {
	return "rates_sync"
}
