package telemetry

// Logger is the printf-style surface engine components log through.
// *log.Logger satisfies it; a nil value disables logging.
type Logger interface {
	Printf(format string, args ...any)
}

// Metrics is the string-keyed counter surface engine components record
// through. *Counters satisfies it.
type Metrics interface {
	Add(key string, delta uint64)
	Store(key string, value uint64)
}
