package notify

import "context"

// logSink writes events to the application log. It is the default sink and
// always succeeds.
type logSink struct {
	id  string
	typ string
	log Logger
}

func newLogSink(_ context.Context, cfg NotifierConfig, log Logger) (Notifier, error) {
	return &logSink{id: cfg.ID, typ: TypeLog, log: ensureLogger(log)}, nil
}

func (l *logSink) ID() string   { return l.id }
func (l *logSink) Type() string { return l.typ }

func (l *logSink) Notify(_ context.Context, evt Event) error {
	l.log.InfoObj("pipeline event", "notify_event", map[string]any{
		"kind":    evt.Kind,
		"network": evt.Network,
		"link":    evt.Link,
		"count":   evt.Count,
		"detail":  evt.Detail,
	})
	return nil
}
