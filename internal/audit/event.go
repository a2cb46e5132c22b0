// Package audit records key lifecycle operations in a tamper-evident
// JSONL log. Each event carries a SHA-256 link to its predecessor, so
// deleting, reordering, or editing any line breaks the chain from that
// point on.
//
// Two rules hold everywhere: a failed audit write fails the operation
// that produced the event, and secrets never enter the log — keys are
// identified by fingerprint, passphrases not at all. Timestamps are
// RFC3339 UTC.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// EventType names the kind of operation an event records.
type EventType string

const (
	// Key lifecycle events
	EventKeyGenerated EventType = "KEY_GENERATED"
	EventKeyImported  EventType = "KEY_IMPORTED"
	EventKeyReleased  EventType = "KEY_RELEASED"

	// Derivation and signature events
	EventPublicDerived     EventType = "PUBLIC_DERIVED"
	EventDataSigned        EventType = "DATA_SIGNED"
	EventSignatureVerified EventType = "SIGNATURE_VERIFIED"

	// External source events
	EventAgentAccessed EventType = "AGENT_ACCESSED"

	// Service events
	EventServiceStarted EventType = "SERVICE_STARTED"
)

// Result is the outcome of the audited operation.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
)

// Actor identifies who triggered the operation.
type Actor struct {
	Type string `json:"type"` // "user" or "service"
	ID   string `json:"id"`   // username or service name
	Host string `json:"host,omitempty"`
}

// Object represents what was acted upon. Keys are identified by their
// public fingerprint; raw key bytes never enter the log.
type Object struct {
	Type        string `json:"type"`                  // "key", "signature", "agent", "service"
	Fingerprint string `json:"fingerprint,omitempty"` // SHA256 fingerprint of the public half
	Comment     string `json:"comment,omitempty"`     // key comment
	Path        string `json:"path,omitempty"`        // file path or socket
}

// Context carries operation-specific detail. Only the fields relevant
// to the event type are set.
type Context struct {
	Algorithm string `json:"algorithm,omitempty"` // key algorithm
	Format    string `json:"format,omitempty"`    // key encoding or signature format
	Hash      string `json:"hash,omitempty"`      // fingerprint digest algorithm
	Namespace string `json:"namespace,omitempty"` // armored signature namespace
	Source    string `json:"source,omitempty"`    // provider: file, agent, pkcs11, inline
	Reason    string `json:"reason,omitempty"`    // failure or mismatch reason
	Handle    uint64 `json:"handle,omitempty"`    // registry handle id
	Keys      int    `json:"keys,omitempty"`      // agent key count
	Verified  bool   `json:"verified,omitempty"`  // signature verification outcome
	Addr      string `json:"addr,omitempty"`      // service listen address
	Version   string `json:"version,omitempty"`   // service version
}

// Event is one line of the audit log. Field order is the wire order.
type Event struct {
	EventType EventType `json:"event_type"`
	Timestamp string    `json:"timestamp"` // RFC3339, UTC
	Actor     Actor     `json:"actor"`
	Object    Object    `json:"object"`
	Context   Context   `json:"context,omitempty"`
	Result    Result    `json:"result"`
	HashPrev  string    `json:"hash_prev"` // chain link: predecessor's Hash
	Hash      string    `json:"hash"`      // sha256 over CanonicalJSON || HashPrev
}

// NewEvent builds an event stamped with the current time and the
// calling user as actor.
func NewEvent(eventType EventType, result Result) *Event {
	hostname, _ := os.Hostname()

	return &Event{
		EventType: eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Actor: Actor{
			Type: "user",
			ID:   invokingUser(),
			Host: hostname,
		},
		Result: result,
	}
}

// invokingUser names the OS user for the actor field. USER covers
// POSIX shells, USERNAME covers Windows. Containers often strip both,
// so fall back to a fixed marker rather than failing validation.
func invokingUser() string {
	for _, env := range []string{"USER", "USERNAME"} {
		if name := os.Getenv(env); name != "" {
			return name
		}
	}
	return "unknown"
}

// WithObject attaches the object acted upon.
func (e *Event) WithObject(obj Object) *Event {
	e.Object = obj
	return e
}

// WithContext attaches operation detail.
func (e *Event) WithContext(ctx Context) *Event {
	e.Context = ctx
	return e
}

// WithActor replaces the default user actor (used by the service).
func (e *Event) WithActor(actor Actor) *Event {
	e.Actor = actor
	return e
}

// Validate rejects events missing a required field.
func (e *Event) Validate() error {
	switch {
	case e.EventType == "":
		return fmt.Errorf("audit event missing event_type")
	case e.Timestamp == "":
		return fmt.Errorf("audit event missing timestamp")
	case e.Actor.Type == "" || e.Actor.ID == "":
		return fmt.Errorf("audit event missing actor")
	case e.Result == "":
		return fmt.Errorf("audit event missing result")
	}
	return nil
}

// chainBody mirrors Event without the Hash field. Its marshaled form is
// what the chain hash covers; HashPrev stays in, which is what links
// the chain.
type chainBody struct {
	EventType EventType `json:"event_type"`
	Timestamp string    `json:"timestamp"`
	Actor     Actor     `json:"actor"`
	Object    Object    `json:"object"`
	Context   Context   `json:"context,omitempty"`
	Result    Result    `json:"result"`
	HashPrev  string    `json:"hash_prev"`
}

// CanonicalJSON is the byte form the chain hash covers.
func (e *Event) CanonicalJSON() ([]byte, error) {
	return json.Marshal(chainBody{
		e.EventType, e.Timestamp, e.Actor, e.Object, e.Context, e.Result, e.HashPrev,
	})
}

// JSON is the stored form, hash included.
func (e *Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}
