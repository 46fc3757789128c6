// Package telemetry provides structured operational logging for the
// lock manager and buffer pool: a small recorder of per-transaction,
// per-page events built on zap, used for observability rather than
// durability. There is no write-ahead log here; commit durability
// comes from FORCE (flush dirty pages synchronously on commit), not
// from replaying a log.
package telemetry

import "go.uber.org/zap"

// Logger wraps a *zap.Logger, defaulting to a no-op logger so callers
// that don't care about telemetry never pay for it.
type Logger struct {
	z *zap.Logger
}

// NewLogger wraps z. A nil z is replaced with zap.NewNop().
func NewLogger(z *zap.Logger) *Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &Logger{z: z}
}

// Noop returns a Logger that discards every event, used as the
// default when a caller doesn't configure one.
func Noop() *Logger { return NewLogger(nil) }

// LockGranted records a lock acquisition (fresh grant or upgrade).
func (l *Logger) LockGranted(tid, pageID string, mode string) {
	l.z.Debug("lock granted", zap.String("tid", tid), zap.String("page_id", pageID), zap.String("mode", mode))
}

// LockBlocked records that tid is now waiting on pageID behind holders.
func (l *Logger) LockBlocked(tid, pageID string, mode string, holders []string) {
	l.z.Info("lock blocked", zap.String("tid", tid), zap.String("page_id", pageID), zap.String("mode", mode), zap.Strings("holders", holders))
}

// DeadlockDetected records that tid's acquire was aborted by cycle
// detection.
func (l *Logger) DeadlockDetected(tid, pageID string) {
	l.z.Warn("deadlock detected", zap.String("tid", tid), zap.String("page_id", pageID))
}

// LocksReleased records that tid released all of its locks.
func (l *Logger) LocksReleased(tid string) {
	l.z.Debug("locks released", zap.String("tid", tid))
}

// PageEvicted records that pageID was dropped from the buffer pool to
// make room for a miss.
func (l *Logger) PageEvicted(pageID string) {
	l.z.Debug("page evicted", zap.String("page_id", pageID))
}

// BufferPoolFull records that no clean page was available to evict.
func (l *Logger) BufferPoolFull(requested string) {
	l.z.Error("buffer pool full of dirty pages", zap.String("requested_page_id", requested))
}

// TransactionCommitted records a FORCE flush completing for tid.
func (l *Logger) TransactionCommitted(tid string, flushedPages int) {
	l.z.Info("transaction committed", zap.String("tid", tid), zap.Int("flushed_pages", flushedPages))
}

// TransactionAborted records an abort discarding tid's dirty pages.
func (l *Logger) TransactionAborted(tid string, discardedPages int) {
	l.z.Info("transaction aborted", zap.String("tid", tid), zap.Int("discarded_pages", discardedPages))
}
