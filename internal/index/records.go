package index

import "github.com/arkilian/rpftiles/pkg/types"

// Fixed on-disk widths of record string fields.
const (
	FileNameWidth      = 12
	WaveletNameWidth   = 16
	DirectoryPathWidth = 512
)

// FileRecord describes one source frame file.
type FileRecord struct {
	// Filename is the upper-cased frame file name
	Filename string

	// DirectoryKey references the containing DirectoryRecord
	DirectoryKey types.Key

	// WaveletKey references the derived WaveletRecord, invalid until attached
	WaveletKey types.Key

	// Sector is the frame footprint; null when it could not be computed
	Sector types.Sector
}

// WaveletRecord describes the progressive encoding derived from a frame.
type WaveletRecord struct {
	Filename     string
	DirectoryKey types.Key
	FileKey      types.Key
}

// DirectoryRecord is one distinct directory path.
type DirectoryRecord struct {
	Path string
}

func newFileRecord() FileRecord {
	return FileRecord{DirectoryKey: types.InvalidKey, WaveletKey: types.InvalidKey}
}

func newWaveletRecord() WaveletRecord {
	return WaveletRecord{DirectoryKey: types.InvalidKey, FileKey: types.InvalidKey}
}

func newDirectoryRecord() DirectoryRecord {
	return DirectoryRecord{}
}
