package domain

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// RoomCode is a short shareable session identifier. Codes are
// case-insensitive; the canonical form is upper case.
type RoomCode string

const (
	RoomCodeLen      = 6
	roomCodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// NormalizeCode returns the canonical form of a user-supplied code.
func NormalizeCode(raw string) RoomCode {
	return RoomCode(strings.ToUpper(strings.TrimSpace(raw)))
}

// NewRoomCode generates a random code from crypto/rand.
func NewRoomCode() (RoomCode, error) {
	max := big.NewInt(int64(len(roomCodeAlphabet)))
	var b strings.Builder
	b.Grow(RoomCodeLen)
	for i := 0; i < RoomCodeLen; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(roomCodeAlphabet[n.Int64()])
	}
	return RoomCode(b.String()), nil
}

func (c RoomCode) String() string { return string(c) }
