package builder

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// ManifestVersion is the current manifest layout.
const ManifestVersion = 2

// Manifest describes the tables built into a data directory.
type Manifest struct {
	Version   int                  `json:"version"`
	UpdatedAt time.Time            `json:"updated_at"`
	Tables    map[string]TableInfo `json:"tables"`
}

// TableInfo describes one built table. Readers must route keys with the
// same strategy and shard count the table was built with.
type TableInfo struct {
	TotalShards int       `json:"total_shards"`
	Strategy    string    `json:"strategy"`
	Compression string    `json:"compression"`
	RecordCount int64     `json:"record_count"`
	ShardCount  int       `json:"shard_count"` // Non-empty shards
	MaxPieces   int       `json:"max_pieces,omitempty"`
	SourceURL   string    `json:"source_url,omitempty"`
	BuiltAt     time.Time `json:"built_at"`
}

// TableNames returns the table names in sorted order.
func (m *Manifest) TableNames() []string {
	names := make([]string, 0, len(m.Tables))
	for name := range m.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const manifestFilename = "manifest.json"

// WriteManifest writes the manifest to the output directory.
func WriteManifest(dir string, m *Manifest) error {
	path := filepath.Join(dir, manifestFilename)
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// ReadManifest reads the manifest from a data directory.
func ReadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, manifestFilename)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if m.Tables == nil {
		m.Tables = make(map[string]TableInfo)
	}
	return &m, nil
}

// updateManifest records one table in the directory's manifest, keeping
// the entries of other tables.
func updateManifest(dir, table string, info TableInfo) error {
	m, err := ReadManifest(dir)
	if errors.Is(err, os.ErrNotExist) {
		m = &Manifest{Tables: make(map[string]TableInfo)}
	} else if err != nil {
		return err
	}

	m.Version = ManifestVersion
	m.UpdatedAt = info.BuiltAt
	m.Tables[table] = info
	return WriteManifest(dir, m)
}
