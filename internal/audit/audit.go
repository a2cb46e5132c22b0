package audit

import (
	"fmt"
	"sync"
)

// The process-wide sink. Defaults to NopWriter so logging calls are
// safe before Init; hosts install a FileWriter when --audit-log is set.
var (
	sinkMu sync.RWMutex
	sink   Writer = NopWriter{}
	active bool
)

// Init routes audit events to w. A nil writer disables logging; events
// are then discarded without error.
func Init(w Writer) error {
	sinkMu.Lock()
	defer sinkMu.Unlock()

	if w == nil {
		sink = NopWriter{}
		active = false
		return nil
	}
	sink = w
	active = true
	return nil
}

// InitFile opens a FileWriter on path and installs it. An empty path
// disables logging.
func InitFile(path string) error {
	if path == "" {
		return Init(nil)
	}
	w, err := NewFileWriter(path)
	if err != nil {
		return err
	}
	return Init(w)
}

// Close flushes the active writer and disables logging. Closing twice
// is harmless.
func Close() error {
	sinkMu.Lock()
	defer sinkMu.Unlock()

	err := sink.Close()
	sink = NopWriter{}
	active = false
	return err
}

// Enabled reports whether events are being persisted.
func Enabled() bool {
	sinkMu.RLock()
	defer sinkMu.RUnlock()
	return active
}

// Log hands event to the active writer. A write failure must fail the
// operation that produced the event; callers that want the wrapping
// done for them use MustLog.
func Log(event *Event) error {
	sinkMu.RLock()
	w := sink
	sinkMu.RUnlock()

	return w.Write(event)
}

// MustLog logs event and wraps any failure so the caller can return it
// directly, aborting the operation the event records.
func MustLog(event *Event) error {
	if err := Log(event); err != nil {
		return fmt.Errorf("audit write refused: %w", err)
	}
	return nil
}

// LogKeyGenerated logs a key generation event.
func LogKeyGenerated(algorithm, fingerprint, comment string, success bool) error {
	result := ResultSuccess
	if !success {
		result = ResultFailure
	}

	event := NewEvent(EventKeyGenerated, result).
		WithObject(Object{
			Type:        "key",
			Fingerprint: fingerprint,
			Comment:     comment,
		}).
		WithContext(Context{
			Algorithm: algorithm,
		})

	return MustLog(event)
}

// LogKeyImported logs a key entering the registry. Source identifies the
// provider the key came from ("file", "agent", "pkcs11", "inline").
func LogKeyImported(source, algorithm, fingerprint string, handle uint64, success bool) error {
	result := ResultSuccess
	if !success {
		result = ResultFailure
	}

	event := NewEvent(EventKeyImported, result).
		WithObject(Object{
			Type:        "key",
			Fingerprint: fingerprint,
		}).
		WithContext(Context{
			Source:    source,
			Algorithm: algorithm,
			Handle:    handle,
		})

	return MustLog(event)
}

// LogKeyReleased logs a registry handle release.
func LogKeyReleased(handle uint64, fingerprint string) error {
	event := NewEvent(EventKeyReleased, ResultSuccess).
		WithObject(Object{
			Type:        "key",
			Fingerprint: fingerprint,
		}).
		WithContext(Context{
			Handle: handle,
		})

	return MustLog(event)
}

// LogPublicDerived logs derivation of a public key from private material.
func LogPublicDerived(algorithm, fingerprint, format string, success bool) error {
	result := ResultSuccess
	if !success {
		result = ResultFailure
	}

	event := NewEvent(EventPublicDerived, result).
		WithObject(Object{
			Type:        "key",
			Fingerprint: fingerprint,
		}).
		WithContext(Context{
			Algorithm: algorithm,
			Format:    format,
		})

	return MustLog(event)
}

// LogDataSigned logs a signing operation. Namespace is empty for raw
// signatures and carries the domain separator for armored ones.
func LogDataSigned(algorithm, fingerprint, namespace string, success bool) error {
	result := ResultSuccess
	if !success {
		result = ResultFailure
	}

	event := NewEvent(EventDataSigned, result).
		WithObject(Object{
			Type:        "key",
			Fingerprint: fingerprint,
		}).
		WithContext(Context{
			Algorithm: algorithm,
			Namespace: namespace,
		})

	return MustLog(event)
}

// LogSignatureVerified logs a verification. valid records the signature
// outcome; success records whether the verification itself could run
// (malformed signatures fail the operation, mismatches do not).
func LogSignatureVerified(algorithm, fingerprint string, valid, success bool) error {
	result := ResultSuccess
	if !success {
		result = ResultFailure
	}

	ctx := Context{
		Algorithm: algorithm,
		Verified:  valid,
	}
	if success && !valid {
		ctx.Reason = "signature mismatch"
	}

	event := NewEvent(EventSignatureVerified, result).
		WithObject(Object{
			Type:        "signature",
			Fingerprint: fingerprint,
		}).
		WithContext(ctx)

	return MustLog(event)
}

// LogAgentAccessed logs an ssh-agent connection.
func LogAgentAccessed(socket string, keys int, success bool) error {
	result := ResultSuccess
	if !success {
		result = ResultFailure
	}

	event := NewEvent(EventAgentAccessed, result).
		WithObject(Object{
			Type: "agent",
			Path: socket,
		}).
		WithContext(Context{
			Keys: keys,
		})

	return MustLog(event)
}

// LogServiceStarted logs REST service startup.
func LogServiceStarted(addr, version string) error {
	event := NewEvent(EventServiceStarted, ResultSuccess).
		WithActor(Actor{Type: "service", ID: "keyfob"}).
		WithObject(Object{
			Type: "service",
		}).
		WithContext(Context{
			Addr:    addr,
			Version: version,
		})

	return MustLog(event)
}
