// Package host defines the outcall surface the trust boundary uses to reach
// the untrusted host: console output, the audit-log stream, wall-clock time
// and persistent storage. The host sees only what crosses this interface,
// stored blobs in particular arrive sealed.
package host

import (
	"time"

	"github.com/attestvm/attestvm/pkg/storage"
	"go.uber.org/zap"
)

// AuditLevel is the severity of an audit-log record.
type AuditLevel uint8

// Audit-log severities.
const (
	AuditInfo AuditLevel = iota + 1
	AuditWarn
	AuditError
)

// Host is the set of outcalls available to the trust boundary. Calls are
// synchronous, the enclave blocks for the host's response.
type Host interface {
	// Print writes a message to the host console.
	Print(msg string)
	// PrintError writes an error message to the host console.
	PrintError(msg string)
	// AuditLog appends a record to the host audit stream. blob may be nil.
	AuditLog(level AuditLevel, msg string, blob []byte)
	// TimestampMS returns the host wall-clock time in milliseconds since
	// the Unix epoch. The trust boundary treats it as unauthenticated
	// freshness material only.
	TimestampMS() uint64
	// StorageRead returns the blob stored under key or
	// storage.ErrKeyNotFound.
	StorageRead(key string) ([]byte, error)
	// StorageWrite persists a blob under key.
	StorageWrite(key string, value []byte) error
	// StorageDelete removes the blob stored under key.
	StorageDelete(key string) error
}

// LocalHost is the in-process host implementation serving outcalls from a
// zap logger and a storage.Store.
type LocalHost struct {
	log   *zap.Logger
	store storage.Store
	now   func() time.Time
}

// Option configures a LocalHost.
type Option func(*LocalHost)

// WithClock overrides the wall-clock source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(h *LocalHost) {
		h.now = now
	}
}

// NewLocalHost creates a host over the given logger and store. A nil logger
// is replaced with a no-op one.
func NewLocalHost(log *zap.Logger, store storage.Store, opts ...Option) *LocalHost {
	if log == nil {
		log = zap.NewNop()
	}
	h := &LocalHost{
		log:   log,
		store: store,
		now:   time.Now,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Print implements the Host interface.
func (h *LocalHost) Print(msg string) {
	h.log.Info(msg)
}

// PrintError implements the Host interface.
func (h *LocalHost) PrintError(msg string) {
	h.log.Error(msg)
}

// AuditLog implements the Host interface.
func (h *LocalHost) AuditLog(level AuditLevel, msg string, blob []byte) {
	fields := make([]zap.Field, 0, 1)
	if blob != nil {
		fields = append(fields, zap.Binary("blob", blob))
	}
	switch level {
	case AuditWarn:
		h.log.Warn(msg, fields...)
	case AuditError:
		h.log.Error(msg, fields...)
	default:
		h.log.Info(msg, fields...)
	}
}

// TimestampMS implements the Host interface.
func (h *LocalHost) TimestampMS() uint64 {
	return uint64(h.now().UnixMilli())
}

// StorageRead implements the Host interface.
func (h *LocalHost) StorageRead(key string) ([]byte, error) {
	return h.store.Get([]byte(key))
}

// StorageWrite implements the Host interface.
func (h *LocalHost) StorageWrite(key string, value []byte) error {
	return h.store.Put([]byte(key), value)
}

// StorageDelete implements the Host interface.
func (h *LocalHost) StorageDelete(key string) error {
	return h.store.Delete([]byte(key))
}
