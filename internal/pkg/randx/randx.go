/*
Package randx provides functions for generating cryptographically secure random
identifiers.

It generates fixed-length Base62 room identifiers, UUID connection ids, and
UUID ping ids for the heartbeat protocol.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	// Base62Chars defines the character set used for Base62 encoding.
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Base62Len is the number of characters in the Base62 set.
	Base62Len = int64(len(Base62Chars))

	// RoomIDLength is the fixed length of generated room identifiers.
	RoomIDLength = 6

	// MaxRoomIDLength bounds client-supplied room identifiers (rooms are
	// created on first join, so ids arrive from the wire).
	MaxRoomIDLength = 64
)

// RoomID generates a Base62 room identifier using crypto/rand.
func RoomID() (string, error) {
	result := make([]byte, RoomIDLength)

	for i := 0; i < RoomIDLength; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(Base62Len))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number for room id: %w", err)
		}
		result[i] = Base62Chars[num.Int64()]
	}

	return string(result), nil
}

// ConnectionID generates a UUID v4 string identifying a live connection.
func ConnectionID() string {
	return uuid.New().String()
}

// MessageID generates a UUID v4 string identifying a persisted chat message.
func MessageID() string {
	return uuid.New().String()
}

// PingID generates a UUID v4 string correlating a heartbeat ping with its pong.
func PingID() string {
	return uuid.New().String()
}

// IsValidRoomID reports whether a client-supplied room identifier is
// acceptable: non-empty, bounded length, and limited to Base62 characters
// plus '-' and '_'.
func IsValidRoomID(id string) bool {
	if id == "" || len(id) > MaxRoomIDLength {
		return false
	}

	for _, char := range id {
		if char == '-' || char == '_' {
			continue
		}
		if !strings.ContainsRune(Base62Chars, char) {
			return false
		}
	}

	return true
}
