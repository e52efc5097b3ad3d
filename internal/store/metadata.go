package store

import (
	"os"
	"strconv"
	"time"
)

// FileFingerprint holds stat-based identity for a reference file, so a
// ledger entry records which panel version produced a score.
type FileFingerprint struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// StatFile creates a FileFingerprint from an on-disk file.
func StatFile(path string) (FileFingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileFingerprint{}, err
	}
	return FileFingerprint{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// Matches reports whether two fingerprints describe the same file content
// version.
func (f FileFingerprint) Matches(other FileFingerprint) bool {
	return f.Size == other.Size && f.ModTime.Equal(other.ModTime)
}

// String returns "path (size bytes, modtime)".
func (f FileFingerprint) String() string {
	if f.Path == "" {
		return ""
	}
	return f.Path + " (" + strconv.FormatInt(f.Size, 10) + " bytes, " + f.ModTime.UTC().Format(time.RFC3339) + ")"
}
