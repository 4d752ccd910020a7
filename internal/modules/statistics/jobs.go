package statistics

import "github.com/rs/zerolog"

// PurgeJob drops expired cache entries on a schedule
type PurgeJob struct {
	cache *Cache
	log   zerolog.Logger
}

// NewPurgeJob creates a cache purge job
func NewPurgeJob(cache *Cache, log zerolog.Logger) *PurgeJob {
	return &PurgeJob{
		cache: cache,
		log:   log.With().Str("job", "stats_cache_purge").Logger(),
	}
}

// Name returns the job name
func (j *PurgeJob) Name() string {
	return "stats_cache_purge"
}

// Run executes the purge
func (j *PurgeJob) Run() error {
	removed := j.cache.Purge()
	if removed > 0 {
		j.log.Debug().Int("removed", removed).Int("remaining", j.cache.Len()).Msg("Purged expired statistics")
	}
	return nil
}
