package wavelet

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
)

// FileSuffix is appended to a frame name to name its wavelet file.
const FileSuffix = ".WVT"

// FileName returns the wavelet file name for a frame file name.
func FileName(frameName string) string {
	return frameName + FileSuffix
}

// WriteFile stores an encoding snappy-compressed. The file is written under
// a temporary name and renamed into place.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("wavelet: failed to create directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, snappy.Encode(nil, data), 0644); err != nil {
		return fmt.Errorf("wavelet: failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("wavelet: failed to rename %s: %w", path, err)
	}
	return nil
}

// ReadFile reads and decompresses an encoding written by WriteFile.
func ReadFile(path string) ([]byte, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wavelet: failed to read %s: %w", path, err)
	}
	data, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("wavelet: failed to decompress %s: %w", path, err)
	}
	return data, nil
}
