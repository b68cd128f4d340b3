package firmware

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// NewRunID returns a fresh 32-character lowercase hex identifier.
// It names both the scratch directory and the archive of one run.
func NewRunID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}

	return hex.EncodeToString(id[:]), nil
}
