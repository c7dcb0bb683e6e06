package ratelimiter

import "time"

type Limiter interface {
	// Allow records one request for key and reports whether it is within
	// the limit, and if not how long until the window resets.
	Allow(key string) (bool, time.Duration)
}

type Config struct {
	RequestsPerTimeFrame int
	TimeFrame            time.Duration
	Enabled              bool
}
