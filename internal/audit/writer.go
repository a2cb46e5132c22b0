package audit

// Writer persists audit events. Implementations set the hash chain
// fields (HashPrev, Hash) and must not return from Write until the
// event is durable; a failed write fails the operation that produced
// the event. Key material and passphrases never reach a Writer: events
// carry fingerprints only.
type Writer interface {
	// Write validates, chains, and persists one event.
	Write(event *Event) error

	// Close flushes pending writes and releases the sink.
	Close() error

	// LastHash returns the hash of the last written event, or
	// GenesisHash when nothing has been written.
	LastHash() string
}

// NopWriter discards all events. It is the writer in place when audit
// logging is disabled.
type NopWriter struct{}

var _ Writer = (*NopWriter)(nil)

func (NopWriter) Write(*Event) error { return nil }
func (NopWriter) Close() error       { return nil }
func (NopWriter) LastHash() string   { return GenesisHash }
