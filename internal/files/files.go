// Package files resolves capture output paths inside the hospital/patient
// scoped data tree and saves captured media there.
package files

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/reemio/endoapp/internal/logging"
)

// File kinds understood by GetFilePath.
const (
	KindImage  = "image"
	KindVideo  = "video"
	KindReport = "report"
)

// Manager owns the data directory tree:
//
//	data/
//	  hospitals/<hospital>/media/<patient>_<id>/{images,videos}
//	  hospitals/<hospital>/reports
//	  images/captured   (unscoped fallback)
//	  videos/captured   (unscoped fallback)
//	  reports
//	  temp
//	  logs
type Manager struct {
	dataDir string
}

// NewManager creates the base directory structure under dataDir.
func NewManager(dataDir string) (*Manager, error) {
	m := &Manager{dataDir: dataDir}
	for _, dir := range []string{
		dataDir,
		filepath.Join(dataDir, "hospitals"),
		filepath.Join(dataDir, "temp"),
		filepath.Join(dataDir, "logs"),
		filepath.Join(dataDir, "reports"),
	} {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return m, nil
}

// DataDir returns the root of the data tree.
func (m *Manager) DataDir() string { return m.dataDir }

// LogDir returns the log directory.
func (m *Manager) LogDir() string { return filepath.Join(m.dataDir, "logs") }

// GetFilePath resolves the destination for a new file. Media files with a
// patient context land in the patient's media directory; without one they
// fall back to the unscoped captured directories. Unknown kinds go to temp.
// The directory is created; filename may be empty, in which case a
// timestamped name is generated.
func (m *Manager) GetFilePath(kind, filename, hospital, patientName, patientID string) (string, error) {
	var dir string
	switch kind {
	case KindImage, KindVideo:
		if hospital != "" && patientName != "" && patientID != "" {
			sub := "images"
			if kind == KindVideo {
				sub = "videos"
			}
			dir = filepath.Join(m.patientMediaDir(hospital, patientName, patientID), sub)
		} else {
			dir = filepath.Join(m.dataDir, kind+"s", "captured")
		}
	case KindReport:
		if hospital != "" {
			dir = filepath.Join(m.hospitalDir(hospital), "reports")
		} else {
			dir = filepath.Join(m.dataDir, "reports")
		}
	default:
		dir = filepath.Join(m.dataDir, "temp")
	}

	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}

	if filename == "" {
		switch kind {
		case KindImage:
			filename = TimestampedName("img", "jpg", false)
		case KindVideo:
			filename = TimestampedName("vid", "avi", false)
		default:
			filename = TimestampedName("file", "tmp", false)
		}
	}

	return filepath.Join(dir, filename), nil
}

// SaveCapturedImage writes encoded image bytes into the tree and returns
// the final path.
func (m *Manager) SaveCapturedImage(data []byte, filename, hospital, patientName, patientID string) (string, error) {
	path, err := m.GetFilePath(KindImage, filename, hospital, patientName, patientID)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to save image: %w", err)
	}
	logging.Trace("Saved captured image: %s", path)
	return path, nil
}

func (m *Manager) hospitalDir(hospital string) string {
	return filepath.Join(m.dataDir, "hospitals", SanitizeName(hospital))
}

func (m *Manager) patientMediaDir(hospital, patientName, patientID string) string {
	folder := fmt.Sprintf("%s_%s", SanitizeName(patientName), SanitizeName(patientID))
	return filepath.Join(m.hospitalDir(hospital), "media", folder)
}

// SanitizeName makes a name safe for the filesystem: invalid characters
// become underscores, whitespace collapses to single underscores, and the
// result is capped at 50 characters. Empty input becomes "Unknown".
func SanitizeName(name string) string {
	if name == "" {
		return "Unknown"
	}

	sanitized := name
	for _, c := range `<>:"/\|?*` {
		sanitized = strings.ReplaceAll(sanitized, string(c), "_")
	}
	sanitized = strings.Join(strings.Fields(sanitized), "_")

	if len(sanitized) > 50 {
		sanitized = sanitized[:50]
	}
	if sanitized == "" {
		return "Unknown"
	}
	return sanitized
}

// TimestampedName builds {prefix}_{yyyyMMdd_HHmmss}[_id].{ext}. The id
// suffix disambiguates files created within the same second.
func TimestampedName(prefix, ext string, withID bool) string {
	timestamp := time.Now().Format("20060102_150405")
	if withID {
		id := time.Now().UnixNano() / int64(time.Millisecond) % 10000
		return fmt.Sprintf("%s_%s_%d.%s", prefix, timestamp, id, ext)
	}
	return fmt.Sprintf("%s_%s.%s", prefix, timestamp, ext)
}
