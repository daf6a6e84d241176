package index

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/arkilian/rpftiles/internal/errors"
	"github.com/arkilian/rpftiles/pkg/types"
)

// File header values.
const (
	Magic   = "RPF_FILE_INDEX"
	Version = "VERSION1"

	headerFieldWidth = 16
	headerSize       = 2 * headerFieldWidth
)

// Component identifiers in the location section.
const (
	ComponentProperties  int32 = 1
	ComponentFileTable   int32 = 2
	ComponentWavelets    int32 = 3
	ComponentDirectories int32 = 4
)

// Fixed layout sizes.
const (
	locationHeaderSize = 12
	locationEntrySize  = 12
	tableHeaderSize    = 12

	rootPathWidth    = 512
	dataSeriesWidth  = 512
	descriptionWidth = 4096

	propertiesSize = 4 + rootPathWidth + dataSeriesWidth + descriptionWidth + 4*8

	fileEntrySize      = 8 + FileNameWidth + 8 + 8 + 4*8
	waveletEntrySize   = 8 + WaveletNameWidth + 8 + 8
	directoryEntrySize = 8 + DirectoryPathWidth
)

var componentOrder = []int32{ComponentProperties, ComponentFileTable, ComponentWavelets, ComponentDirectories}

var be = binary.BigEndian

// Save serializes the store. Layout, all integers big-endian:
//   - 16 bytes magic, 16 bytes version, NUL padded
//   - location section: length, table offset, count, then (id, length, offset) triples
//   - properties: length, root path, data series, description, 4 angles
//   - file, wavelet and directory tables: length, record offset, count, then (key, payload)
func (s *Store) Save() ([]byte, error) {
	props := s.Properties()

	var files []keyed[FileRecord]
	s.files.Each(func(k types.Key, r FileRecord) bool {
		files = append(files, keyed[FileRecord]{k, r})
		return true
	})
	var wavelets []keyed[WaveletRecord]
	s.wavelets.Each(func(k types.Key, r WaveletRecord) bool {
		wavelets = append(wavelets, keyed[WaveletRecord]{k, r})
		return true
	})
	var dirs []keyed[DirectoryRecord]
	s.directories.Each(func(k types.Key, r DirectoryRecord) bool {
		dirs = append(dirs, keyed[DirectoryRecord]{k, r})
		return true
	})

	lengths := map[int32]int{
		ComponentProperties:  propertiesSize,
		ComponentFileTable:   tableHeaderSize + len(files)*fileEntrySize,
		ComponentWavelets:    tableHeaderSize + len(wavelets)*waveletEntrySize,
		ComponentDirectories: tableHeaderSize + len(dirs)*directoryEntrySize,
	}

	locationSize := locationHeaderSize + len(componentOrder)*locationEntrySize
	offsets := make(map[int32]int, len(componentOrder))
	total := headerSize + locationSize
	for _, id := range componentOrder {
		offsets[id] = total
		total += lengths[id]
	}
	if total > math.MaxInt32 {
		return nil, errors.NewFormatError(errors.CodeLengthMismatch,
			fmt.Sprintf("index of %d bytes exceeds 32-bit offsets", total))
	}

	buf := make([]byte, total)
	putString(buf[0:headerFieldWidth], Magic)
	putString(buf[headerFieldWidth:headerSize], Version)

	w := headerSize
	putInt32(buf[w:], locationSize)
	putInt32(buf[w+4:], locationHeaderSize)
	putInt32(buf[w+8:], len(componentOrder))
	w += locationHeaderSize
	for _, id := range componentOrder {
		putInt32(buf[w:], int(id))
		putInt32(buf[w+4:], lengths[id])
		putInt32(buf[w+8:], offsets[id])
		w += locationEntrySize
	}

	writeProperties(buf[offsets[ComponentProperties]:], props)

	writeTable(buf[offsets[ComponentFileTable]:], files, fileEntrySize, func(b []byte, r FileRecord) {
		putString(b[0:FileNameWidth], r.Filename)
		putKey(b[FileNameWidth:], r.DirectoryKey)
		putKey(b[FileNameWidth+8:], r.WaveletKey)
		putSector(b[FileNameWidth+16:], r.Sector)
	})
	writeTable(buf[offsets[ComponentWavelets]:], wavelets, waveletEntrySize, func(b []byte, r WaveletRecord) {
		putString(b[0:WaveletNameWidth], r.Filename)
		putKey(b[WaveletNameWidth:], r.DirectoryKey)
		putKey(b[WaveletNameWidth+8:], r.FileKey)
	})
	writeTable(buf[offsets[ComponentDirectories]:], dirs, directoryEntrySize, func(b []byte, r DirectoryRecord) {
		putString(b[0:DirectoryPathWidth], r.Path)
	})

	return buf, nil
}

// SaveFile writes the store to path atomically: the bytes go to a temporary
// file in the same directory which is then renamed over path.
func (s *Store) SaveFile(path string) error {
	data, err := s.Save()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("index: failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("index: failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("index: failed to write index: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("index: failed to sync index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("index: failed to close index: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("index: failed to rename index: %w", err)
	}
	return nil
}

// LoadFile reads and decodes an index file.
func LoadFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("index: failed to read %s: %w", path, err)
	}
	return Load(data)
}

// Load decodes an index buffer. The magic header is checked before anything
// else. Every offset and length is validated against the buffer; on any
// structural error a FORMAT error is returned and no store.
func Load(data []byte) (*Store, error) {
	if len(data) < headerFieldWidth || getString(data[0:headerFieldWidth]) != Magic {
		return nil, errors.NewFormatError(errors.CodeBadMagic, "not an RPF file index")
	}
	if len(data) < headerSize+locationHeaderSize {
		return nil, truncated("header", headerSize+locationHeaderSize, len(data))
	}

	locLength := getInt32(data[headerSize:])
	locTableOffset := getInt32(data[headerSize+4:])
	locCount := getInt32(data[headerSize+8:])
	if locCount < 0 || locTableOffset < locationHeaderSize {
		return nil, errors.NewFormatError(errors.CodeBadOffset,
			fmt.Sprintf("location section: table offset %d, count %d", locTableOffset, locCount))
	}
	if locLength != locTableOffset+locCount*locationEntrySize {
		return nil, errors.NewFormatError(errors.CodeLengthMismatch,
			fmt.Sprintf("location section length %d does not match %d entries", locLength, locCount))
	}
	if headerSize+locLength > len(data) {
		return nil, truncated("location section", headerSize+locLength, len(data))
	}

	type location struct{ length, offset int }
	locations := make(map[int32]location, locCount)
	for i := 0; i < locCount; i++ {
		e := data[headerSize+locTableOffset+i*locationEntrySize:]
		id := int32(getInt32(e))
		length := getInt32(e[4:])
		offset := getInt32(e[8:])
		if length < 0 || offset < 0 || offset > len(data) || length > len(data)-offset {
			return nil, errors.NewFormatError(errors.CodeBadOffset,
				fmt.Sprintf("component %d: offset %d length %d outside %d-byte buffer", id, offset, length, len(data)))
		}
		if _, seen := locations[id]; !seen {
			locations[id] = location{length, offset}
		}
	}

	for _, id := range componentOrder {
		if _, ok := locations[id]; !ok {
			return nil, errors.NewFormatError(errors.CodeMissingComponent,
				fmt.Sprintf("component %d not present", id))
		}
	}

	section := func(id int32) []byte {
		l := locations[id]
		return data[l.offset : l.offset+l.length]
	}

	props, err := readProperties(section(ComponentProperties))
	if err != nil {
		return nil, err
	}
	s := NewStore(props)

	err = readTable(section(ComponentFileTable), "file", fileEntrySize, func(key types.Key, b []byte) bool {
		return s.files.insert(key, FileRecord{
			Filename:     getString(b[0:FileNameWidth]),
			DirectoryKey: getKey(b[FileNameWidth:]),
			WaveletKey:   getKey(b[FileNameWidth+8:]),
			Sector:       getSector(b[FileNameWidth+16:]),
		})
	})
	if err != nil {
		return nil, err
	}

	err = readTable(section(ComponentWavelets), "wavelet", waveletEntrySize, func(key types.Key, b []byte) bool {
		return s.wavelets.insert(key, WaveletRecord{
			Filename:     getString(b[0:WaveletNameWidth]),
			DirectoryKey: getKey(b[WaveletNameWidth:]),
			FileKey:      getKey(b[WaveletNameWidth+8:]),
		})
	})
	if err != nil {
		return nil, err
	}

	err = readTable(section(ComponentDirectories), "directory", directoryEntrySize, func(key types.Key, b []byte) bool {
		return s.directories.insert(key, DirectoryRecord{Path: getString(b[0:DirectoryPathWidth])})
	})
	if err != nil {
		return nil, err
	}

	return s, nil
}

type keyed[R any] struct {
	key types.Key
	rec R
}

func writeProperties(b []byte, p Properties) {
	putInt32(b, propertiesSize)
	o := 4
	putString(b[o:o+rootPathWidth], p.RootPath)
	o += rootPathWidth
	putString(b[o:o+dataSeriesWidth], p.DataSeriesID)
	o += dataSeriesWidth
	putString(b[o:o+descriptionWidth], p.Description)
	o += descriptionWidth
	putSector(b[o:], p.BoundingSector)
}

func readProperties(b []byte) (Properties, error) {
	if len(b) < 4 {
		return Properties{}, truncated("properties", 4, len(b))
	}
	if length := getInt32(b); length != len(b) || length != propertiesSize {
		return Properties{}, errors.NewFormatError(errors.CodeLengthMismatch,
			fmt.Sprintf("properties length %d, location says %d, expected %d", length, len(b), propertiesSize))
	}
	o := 4
	p := Properties{}
	p.RootPath = getString(b[o : o+rootPathWidth])
	o += rootPathWidth
	p.DataSeriesID = getString(b[o : o+dataSeriesWidth])
	o += dataSeriesWidth
	p.Description = getString(b[o : o+descriptionWidth])
	o += descriptionWidth
	p.BoundingSector = getSector(b[o:])
	return p, nil
}

func writeTable[R any](b []byte, recs []keyed[R], entrySize int, put func([]byte, R)) {
	putInt32(b, tableHeaderSize+len(recs)*entrySize)
	putInt32(b[4:], tableHeaderSize)
	putInt32(b[8:], len(recs))
	for i, r := range recs {
		e := b[tableHeaderSize+i*entrySize:]
		putKey(e, r.key)
		put(e[8:entrySize], r.rec)
	}
}

func readTable(b []byte, name string, entrySize int, insert func(types.Key, []byte) bool) error {
	if len(b) < tableHeaderSize {
		return truncated(name+" table", tableHeaderSize, len(b))
	}
	length := getInt32(b)
	recordOffset := getInt32(b[4:])
	count := getInt32(b[8:])
	if length != len(b) {
		return errors.NewFormatError(errors.CodeLengthMismatch,
			fmt.Sprintf("%s table length %d, location says %d", name, length, len(b)))
	}
	if recordOffset < tableHeaderSize || count < 0 {
		return errors.NewFormatError(errors.CodeBadOffset,
			fmt.Sprintf("%s table: record offset %d, count %d", name, recordOffset, count))
	}
	if recordOffset > length || (length-recordOffset)/entrySize < count {
		return truncated(name+" table", recordOffset+count*entrySize, length)
	}

	for i := 0; i < count; i++ {
		e := b[recordOffset+i*entrySize : recordOffset+(i+1)*entrySize]
		key := getKey(e)
		if !insert(key, e[8:]) {
			return errors.NewFormatError(errors.CodeBadRecord,
				fmt.Sprintf("%s table: invalid or duplicate key %d", name, key))
		}
	}
	return nil
}

func truncated(what string, need, have int) error {
	return errors.NewFormatError(errors.CodeTruncated,
		fmt.Sprintf("%s needs %d bytes, have %d", what, need, have))
}

// putString writes s NUL padded into b, truncating on a rune boundary.
func putString(b []byte, s string) {
	if len(s) > len(b) {
		n := len(b)
		for n > 0 && !utf8.RuneStart(s[n]) {
			n--
		}
		s = s[:n]
	}
	n := copy(b, s)
	for i := n; i < len(b); i++ {
		b[i] = 0
	}
}

func getString(b []byte) string {
	return strings.TrimRight(string(b), "\x00 ")
}

func putInt32(b []byte, v int) {
	be.PutUint32(b, uint32(int32(v)))
}

func getInt32(b []byte) int {
	return int(int32(be.Uint32(b)))
}

func putKey(b []byte, k types.Key) {
	be.PutUint64(b, uint64(k))
}

func getKey(b []byte) types.Key {
	return types.Key(int64(be.Uint64(b)))
}

func putSector(b []byte, s types.Sector) {
	be.PutUint64(b[0:], math.Float64bits(s.MinLatitude.Wire()))
	be.PutUint64(b[8:], math.Float64bits(s.MaxLatitude.Wire()))
	be.PutUint64(b[16:], math.Float64bits(s.MinLongitude.Wire()))
	be.PutUint64(b[24:], math.Float64bits(s.MaxLongitude.Wire()))
}

func getSector(b []byte) types.Sector {
	return types.Sector{
		MinLatitude:  types.AngleFromWire(math.Float64frombits(be.Uint64(b[0:]))),
		MaxLatitude:  types.AngleFromWire(math.Float64frombits(be.Uint64(b[8:]))),
		MinLongitude: types.AngleFromWire(math.Float64frombits(be.Uint64(b[16:]))),
		MaxLongitude: types.AngleFromWire(math.Float64frombits(be.Uint64(b[24:]))),
	}
}
