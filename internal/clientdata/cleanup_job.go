package clientdata

import (
	"time"

	"github.com/rs/zerolog"
)

// CleanupJob purges expired upstream responses. Scheduled daily.
type CleanupJob struct {
	repo *Repository
	log  zerolog.Logger
}

// NewCleanupJob creates a new client data cleanup job.
func NewCleanupJob(repo *Repository, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		repo: repo,
		log:  log.With().Str("job", "client_data_cleanup").Logger(),
	}
}

// Run deletes expired rows from every client data table.
func (j *CleanupJob) Run() error {
	start := time.Now()

	results, err := j.repo.DeleteAllExpired()
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to delete expired client data")
		return err
	}

	var total int64
	for table, count := range results {
		if count > 0 {
			j.log.Debug().Str("table", string(table)).Int64("deleted", count).Msg("Purged expired entries")
		}
		total += count
	}

	j.log.Info().
		Int64("total_deleted", total).
		Dur("duration", time.Since(start)).
		Msg("Client data cleanup completed")

	return nil
}

// Name returns the job name for scheduling and logging.
func (j *CleanupJob) Name() string {
	return "client_data_cleanup"
}
