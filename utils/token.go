package utils

import "github.com/google/uuid"

// CreateToken returns an opaque refresh token value. Two UUIDs are
// concatenated so the token is not guessable from a single generator state.
func CreateToken() string {
	firstUUID, err := uuid.NewUUID()
	if err != nil {
		return ""
	}

	secondUUID, err := uuid.NewUUID()
	if err != nil {
		return ""
	}

	return firstUUID.String() + secondUUID.String()
}
