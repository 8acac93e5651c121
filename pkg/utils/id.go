package utils

import (
	"strings"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// GenerateID returns a new 24-character lowercase hex identifier.
func GenerateID() string {
	return primitive.NewObjectID().Hex()
}

// IsValidID reports whether s is a 24-character hex identifier.
func IsValidID(s string) bool {
	if len(s) != 24 {
		return false
	}
	_, err := primitive.ObjectIDFromHex(strings.ToLower(s))
	return err == nil
}

// RandomToken returns 32 random lowercase hex characters.
func RandomToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
