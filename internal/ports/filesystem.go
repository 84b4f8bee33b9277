package ports

import (
	"os"
	"path/filepath"
	"strings"
)

// FileSystem is the host filesystem as steps see it. Checks use Exists and
// IsDir for markers such as a cloned repository, a built artifact or a
// downloaded checkpoint. ReadFile also serves pidfiles, server logs and
// /proc entries. FileSize and FileHash give what the model hub publishes
// for each file: its byte size and hex sha256 digest.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte, perm os.FileMode) error
	Exists(path string) bool
	IsDir(path string) bool
	FileSize(path string) (int64, error)
	FileHash(path string) (string, error)
	MkdirAll(path string, perm os.FileMode) error
	Remove(path string) error
}

// ExpandPath replaces a leading ~/ with the home directory of the user
// running gpuprep. Manifest paths are expanded once, when defaults are
// applied.
func ExpandPath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
