package events

import "go.uber.org/zap"

// LoggingObserver logs every event.
type LoggingObserver struct {
	name    string
	logger  *zap.Logger
	verbose bool
}

// NewLoggingObserver creates a new observer that logs events.
// With verbose set, payloads are logged too.
func NewLoggingObserver(logger *zap.Logger, verbose bool) *LoggingObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingObserver{
		name:    "LoggingObserver",
		logger:  logger.Named("events"),
		verbose: verbose,
	}
}

// OnEvent logs the event details.
func (o *LoggingObserver) OnEvent(event Event) error {
	if o.verbose {
		o.logger.Debug("event", zap.String("type", event.Type), zap.Any("data", event.Data))
	} else {
		o.logger.Debug("event", zap.String("type", event.Type))
	}
	return nil
}

// GetName returns the observer's name.
func (o *LoggingObserver) GetName() string {
	return o.name
}

// ShouldHandle returns true for all events.
func (o *LoggingObserver) ShouldHandle(string) bool {
	return true
}
