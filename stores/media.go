package stores

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MediaStore persists image payloads and hands back a retrievable URL.
// The bridge persists every image here before the corresponding stream
// event is emitted, so events never carry raw bytes.
type MediaStore interface {
	SaveImage(id string, data []byte, mimeType string) (url string, err error)
}

// DiskMediaStore writes images under a local directory served at BaseURL.
type DiskMediaStore struct {
	Dir     string
	BaseURL string
}

// NewDiskMediaStore creates a disk-backed media store. BaseURL should be
// the externally reachable prefix under which Dir is served, e.g.
// "http://localhost:8080/images".
func NewDiskMediaStore(dir, baseURL string) (*DiskMediaStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	return &DiskMediaStore{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

// SaveImage writes the payload to disk named after its canonical id, so
// the resulting URL normalizes back to the id it was stored under.
func (m *DiskMediaStore) SaveImage(id string, data []byte, mimeType string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("image id is required")
	}
	if len(data) == 0 {
		return "", fmt.Errorf("image payload is empty")
	}

	filename := id + "." + extensionFor(mimeType)
	path := filepath.Join(m.Dir, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to save image %s: %w", id, err)
	}

	return m.BaseURL + "/" + filename, nil
}

// SweepOlderThan removes media files older than the retention window and
// returns how many were deleted. Run on a schedule, not per request.
func (m *DiskMediaStore) SweepOlderThan(retention time.Duration) (int, error) {
	entries, err := os.ReadDir(m.Dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read media directory: %w", err)
	}

	cutoff := time.Now().Add(-retention)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(m.Dir, entry.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

func extensionFor(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "jpeg"), strings.Contains(mimeType, "jpg"):
		return "jpg"
	case strings.Contains(mimeType, "webp"):
		return "webp"
	default:
		return "png"
	}
}
