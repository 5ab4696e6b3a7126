// Package domain contains entities without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const (
	MaxPeerIDLen      = 64
	MaxDisplayNameLen = 36

	// DefaultDisplayName labels a participant that never sent a name.
	DefaultDisplayName = "Participant"
)

var (
	ErrPeerIDEmpty   = errors.New("peer id empty")
	ErrPeerIDTooLong = errors.New("peer id too long")
)

// PeerID is chosen by the client and is not a credential.
type PeerID string

// AdmissionState is where a peer stands in a mesh room. A rejected peer is
// dropped from pending and reads as NONE again.
type AdmissionState string

const (
	AdmissionNone    AdmissionState = "NONE"
	AdmissionPending AdmissionState = "PENDING"
	AdmissionActive  AdmissionState = "ACTIVE"
)

// ValidatePeerID rejects ids that cannot be used as map keys on the wire.
func ValidatePeerID(id PeerID) error {
	if len(id) == 0 {
		return ErrPeerIDEmpty
	}
	if len(id) > MaxPeerIDLen {
		return ErrPeerIDTooLong
	}
	return nil
}

// DisplayName trims the name to the allowed length and falls back to the
// default label when empty.
func DisplayName(raw string) string {
	name := strings.TrimSpace(raw)
	if name == "" {
		return DefaultDisplayName
	}
	if r := []rune(name); len(r) > MaxDisplayNameLen {
		name = string(r[:MaxDisplayNameLen])
	}
	return name
}

// Participant is a read-only view of a room member.
type Participant struct {
	PeerID PeerID `json:"peerId"`
	Name   string `json:"name"`
}
