package helper

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// entryNamespace scopes StableUUID so ids never collide with other uuid v5 users.
var entryNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("document-qa/entries"))

// StableUUID maps an arbitrary key to a deterministic UUID (v5).
func StableUUID(key string) string {
	return uuid.NewSHA1(entryNamespace, []byte(key)).String()
}

// pretty print
func PrettyPrint(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Warn().Err(err).Msg("Error pretty printing")
		return
	}
	fmt.Println(string(b))
}

// CreateFolder creates path and its parents if missing.
func CreateFolder(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create folder %s: %w", path, err)
	}
	return nil
}
