package repository

import "time"

// MemoryOption applies a configuration option to the MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// MongoOption applies a configuration option to the MongoStore.
type MongoOption func(*mongoSettings)

type mongoSettings struct {
	maxPoolSize    uint64
	minPoolSize    uint64
	connectTimeout time.Duration
	socketTimeout  time.Duration
	pingTimeout    time.Duration
	now            func() time.Time
}

func defaultMongoSettings() mongoSettings {
	return mongoSettings{
		maxPoolSize:    50,
		minPoolSize:    5,
		connectTimeout: 5 * time.Second,
		socketTimeout:  10 * time.Second,
		pingTimeout:    2 * time.Second,
		now:            time.Now,
	}
}

// WithPoolSize bounds the driver connection pool.
func WithPoolSize(minSize, maxSize uint64) MongoOption {
	return func(s *mongoSettings) {
		if maxSize > 0 && minSize <= maxSize {
			s.minPoolSize = minSize
			s.maxPoolSize = maxSize
		}
	}
}

// WithTimeouts sets the connect and socket timeouts.
func WithTimeouts(connect, socket time.Duration) MongoOption {
	return func(s *mongoSettings) {
		if connect > 0 {
			s.connectTimeout = connect
		}
		if socket > 0 {
			s.socketTimeout = socket
		}
	}
}

// WithMongoClock overrides the time source used for timestamps.
func WithMongoClock(now func() time.Time) MongoOption {
	return func(s *mongoSettings) {
		if now != nil {
			s.now = now
		}
	}
}
