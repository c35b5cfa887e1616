package event

import "time"

// DefaultSweepInterval is how often dead subscribers are purged.
const DefaultSweepInterval = 30 * time.Second

// Option configures an Aggregator.
type Option func(*config)

type config struct {
	sweepInterval time.Duration
	historySize   int
	loop          *Loop
	now           func() time.Time
}

func defaultConfig() config {
	return config{
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
	}
}

// WithSweepInterval sets the purge interval. Non-positive values keep the
// default.
func WithSweepInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.sweepInterval = d
		}
	}
}

// WithHistory keeps the last n published envelopes.
func WithHistory(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.historySize = n
		}
	}
}

// WithLoop sets the designated loop used by PublishDeferred.
func WithLoop(l *Loop) Option {
	return func(c *config) {
		c.loop = l
	}
}

// WithClock overrides the envelope timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}
