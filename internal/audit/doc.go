// Package audit carries security events from the engine to their sinks.
//
// The engine builds an [Event] and hands it to a [Dispatcher], which queues it
// and calls the configured [Sink] on a separate goroutine. Sinks shipped
// here write to a channel, to an io.Writer as JSON lines, or to a slog
// logger; [MultiSink] fans out to several.
//
// A sink error or panic is counted in [Dispatcher.Failed] and logged. A full
// queue either drops the event, counted in [Dispatcher.Dropped], or makes
// the caller wait, depending on [Config.DropIfFull].
//
// Which events exist and when they fire is decided by the authkit package,
// not here.
package audit
