package geofence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const boundarySuffix = "_boundary.json"

// BoundaryFile is the on-disk boundary document.
type BoundaryFile struct {
	CameraID string  `json:"camera_id,omitempty"`
	Points   Polygon `json:"points"`
}

// BoundaryPath is the conventional file for a camera under dir.
func BoundaryPath(dir, cameraID string) string {
	return filepath.Join(dir, cameraID+boundarySuffix)
}

// ReadBoundaryFile parses a boundary document. A missing camera_id is taken from
// the file name.
func ReadBoundaryFile(path string) (BoundaryFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return BoundaryFile{}, fmt.Errorf("read boundary file: %w", err)
	}

	var bf BoundaryFile
	if err := json.Unmarshal(data, &bf); err != nil {
		return BoundaryFile{}, fmt.Errorf("parse boundary file %s: %w", path, err)
	}
	if bf.CameraID == "" {
		bf.CameraID = strings.TrimSuffix(filepath.Base(path), boundarySuffix)
	}
	return bf, nil
}

// WriteBoundaryFile stores points for cameraID under dir.
func WriteBoundaryFile(dir, cameraID string, points Polygon) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create boundaries dir: %w", err)
	}
	data, err := json.MarshalIndent(BoundaryFile{CameraID: cameraID, Points: points}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal boundary: %w", err)
	}
	if err := os.WriteFile(BoundaryPath(dir, cameraID), data, 0o644); err != nil {
		return fmt.Errorf("write boundary file: %w", err)
	}
	return nil
}

// LoadBoundaryFile installs the boundary for cameraID from dir.
func (e *Engine) LoadBoundaryFile(dir, cameraID string) error {
	bf, err := ReadBoundaryFile(BoundaryPath(dir, cameraID))
	if err != nil {
		return err
	}
	e.SetBoundary(cameraID, bf.Points)
	return nil
}

// LoadDir installs every *_boundary.json found in dir. A missing directory is
// not an error. Unreadable files are logged and skipped.
func (e *Engine) LoadDir(dir string) (int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+boundarySuffix))
	if err != nil {
		return 0, fmt.Errorf("scan boundaries dir: %w", err)
	}

	loaded := 0
	for _, p := range paths {
		bf, err := ReadBoundaryFile(p)
		if err != nil {
			slog.Error("load boundary", "path", p, "error", err)
			continue
		}
		e.SetBoundary(bf.CameraID, bf.Points)
		loaded++
	}
	return loaded, nil
}
