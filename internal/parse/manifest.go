package parse

import (
	"encoding/json"
	"fmt"
	"time"
)

const ManifestVersion = 1

// Manifest is stored at the root of every export archive.
type Manifest struct {
	Version       int       `json:"version"`
	RunID         string    `json:"run_id"`
	ExportedAt    time.Time `json:"exported_at"`
	BaseURL       string    `json:"base_url"`
	Conversations []Record  `json:"conversations"`
	// Attachments maps file id to its name under attachments/.
	Attachments map[string]string `json:"attachments"`
}

func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if m.Version == 0 || m.Version > ManifestVersion {
		return nil, fmt.Errorf("unsupported manifest version %d", m.Version)
	}
	if m.Attachments == nil {
		m.Attachments = map[string]string{}
	}
	return &m, nil
}
