package toolclient

import "time"

// Options are the recognised client settings.
type Options struct {
	// Timeout bounds a single dispatch, retries included.
	Timeout time.Duration
	// RetryAttempts is the total number of execution attempts for transient
	// executor failures.
	RetryAttempts int
	// RetryDelay is the base of the exponential backoff between attempts.
	RetryDelay time.Duration
	// MaxConcurrentCalls is the size of the execution gate.
	MaxConcurrentCalls int
	EnableCache        bool
	// CacheTimeout is the TTL of a cached result.
	CacheTimeout    time.Duration
	CacheMaxEntries int
}

// DefaultOptions mirrors the documented client defaults.
func DefaultOptions() Options {
	return Options{
		Timeout:            30 * time.Second,
		RetryAttempts:      3,
		RetryDelay:         time.Second,
		MaxConcurrentCalls: 5,
		EnableCache:        true,
		CacheTimeout:       5 * time.Minute,
		CacheMaxEntries:    1024,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxConcurrentCalls <= 0 {
		o.MaxConcurrentCalls = def.MaxConcurrentCalls
	}
	if o.CacheTimeout <= 0 {
		o.CacheTimeout = def.CacheTimeout
	}
	if o.CacheMaxEntries <= 0 {
		o.CacheMaxEntries = def.CacheMaxEntries
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 1
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
	return o
}
