package common

import (
	"math/rand"
	"time"
)

// GenerateTrxNo returns a short human-readable transaction reference.
// Uniqueness is enforced by the database, not here.
func GenerateTrxNo() string {
	const characters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	result := make([]byte, 10)
	for i := range result {
		result[i] = characters[r.Intn(len(characters))]
	}
	return "LDG" + string(result)
}
