package dtk

import "time"

// Logger is the structured logger used by the ledger and the balance watcher.
// Args alternate key/value pairs in the slog style.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger discards everything.
type NopLogger struct{}

func NewNopLogger() *NopLogger { return &NopLogger{} }

func (*NopLogger) Debug(string, ...any) {}
func (*NopLogger) Info(string, ...any)  {}
func (*NopLogger) Warn(string, ...any)  {}
func (*NopLogger) Error(string, ...any) {}

// Metrics receives ledger events. The prometheus implementation lives in
// internal/metrics.
type Metrics interface {
	TokenMinted(dataType string)
	MintFailed(dataType string)
	ObserveMint(elapsed time.Duration)
	UsageRecorded(usage int)
	TokenDeleted()
	CorruptEvicted()
	BalanceObserved(sol float64)
}

// NopMetrics drops every observation.
type NopMetrics struct{}

func (NopMetrics) TokenMinted(string)        {}
func (NopMetrics) MintFailed(string)         {}
func (NopMetrics) ObserveMint(time.Duration) {}
func (NopMetrics) UsageRecorded(int)         {}
func (NopMetrics) TokenDeleted()             {}
func (NopMetrics) CorruptEvicted()           {}
func (NopMetrics) BalanceObserved(float64)   {}
