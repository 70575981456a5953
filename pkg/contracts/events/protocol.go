// Package events contains the event contract consumed by external indexers
// over the registry's WebSocket stream.
package events

import (
	"encoding/json"
	"time"
)

// Protocol version
const (
	ProtocolVersion = "1.0"
	ProtocolName    = "licbind-event-stream"
)

// EventType names one registry event on the stream.
type EventType string

const (
	EventLicenseAccepted     EventType = "license:accepted"
	EventLicenseMinted       EventType = "license:minted"
	EventLicenseTermsRecorded EventType = "license:terms_recorded"
	EventAccountCreated      EventType = "account:created"
	EventMetadataBaseUpdated EventType = "metadata:base_updated"
	EventAllowlistRootUpdated EventType = "allowlist:root_updated"
	EventOfferCreated        EventType = "offer:created"
	EventOfferRevoked        EventType = "offer:revoked"
	EventOpenMintingToggled  EventType = "open:toggled"

	// EventStreamConnected is the welcome frame sent to a subscriber on
	// connect, carrying the protocol version it should expect.
	EventStreamConnected EventType = "stream:connected"
)

// Frame is the wire envelope for one event on the stream.
type Frame struct {
	Version   string          `json:"version"`
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
	Sequence  uint64          `json:"sequence"`
	TraceID   string          `json:"trace_id,omitempty"`
}
