package repo

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/miradorstack/mirador-investigator/internal/models"
)

// ArtifactPath returns where the record for alertID is written under dir.
func ArtifactPath(dir, alertID string) string {
	return filepath.Join(dir, "rca-"+alertID+".json")
}

// WriteArtifact writes record as indented JSON, creating dir when missing.
func WriteArtifact(dir, alertID string, record models.RCARecord) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	path := ArtifactPath(dir, alertID)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return path, nil
}
