package errors_test

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/rpftiles/internal/errors"
	"github.com/arkilian/rpftiles/internal/index"
	"github.com/arkilian/rpftiles/internal/rpf"
)

func savedIndex(t *testing.T) []byte {
	t.Helper()
	store := index.NewStore(index.Properties{DataSeriesID: "ON"})
	store.CreateFileRecord("00000010.ON1", store.DedupeDirectory("/frames"))
	data, err := store.Save()
	require.NoError(t, err)
	return data
}

func TestFormatErrors_FromLoad(t *testing.T) {
	data := savedIndex(t)

	tests := []struct {
		name string
		data []byte
		code string
	}{
		{"empty", nil, errors.CodeBadMagic},
		{"wrong magic", append([]byte("NOT_AN_INDEX\x00\x00\x00\x00"), data[16:]...), errors.CodeBadMagic},
		{"magic only", data[:16], errors.CodeTruncated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := index.Load(tt.data)
			require.Error(t, err)
			assert.True(t, errors.IsFormat(err))
			assert.Equal(t, errors.ErrCategoryFormat, errors.GetCategory(err))
			assert.Equal(t, tt.code, errors.GetCode(err))
			assert.False(t, errors.IsRetryable(err))
		})
	}
}

func TestFormatErrors_SeenThroughLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rpf.idx")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0644))

	_, err := index.LoadFile(path)
	assert.Equal(t, errors.CodeBadMagic, errors.GetCode(err))
	assert.Equal(t, "[FORMAT:BAD_MAGIC] not an RPF file index", err.Error())

	// a missing file is an os error, not a format error
	_, err = index.LoadFile(filepath.Join(t.TempDir(), "missing.idx"))
	assert.True(t, stderrors.Is(err, os.ErrNotExist))
	assert.False(t, errors.IsFormat(err))
	assert.Equal(t, "", errors.GetCode(err))
}

func TestGeocodeErrors_FromRPF(t *testing.T) {
	_, err := rpf.ParseFilename("scan.png")
	assert.Equal(t, errors.ErrCategoryGeocode, errors.GetCategory(err))
	assert.Equal(t, errors.CodeUnparsableName, errors.GetCode(err))

	_, err = rpf.LookupDataSeries("ZZ")
	assert.Equal(t, errors.CodeUnknownSeries, errors.GetCode(err))
	assert.True(t, stderrors.Is(err, errors.New(errors.ErrCategoryGeocode, errors.CodeUnknownSeries, "")))
	assert.False(t, stderrors.Is(err, errors.New(errors.ErrCategoryGeocode, errors.CodeUnparsableName, "")))
}

func TestQueryError_Details(t *testing.T) {
	err := errors.NewInvalidQuery("synth: size 0x256 must be positive")
	detailed := err.WithDetails(map[string]interface{}{"width": 0, "height": 256})

	assert.Equal(t, errors.CodeInvalidQuery, errors.GetCode(detailed))
	assert.Equal(t, 0, detailed.Details["width"])
	assert.Nil(t, err.Details)
	assert.Equal(t, "[QUERY:INVALID_QUERY] synth: size 0x256 must be positive", detailed.Error())
}

func TestCanceled_Wrapped(t *testing.T) {
	err := fmt.Errorf("builder: wavelet phase: %w", errors.ErrCanceled)
	assert.True(t, stderrors.Is(err, errors.ErrCanceled))
	assert.Equal(t, errors.ErrCategoryBuild, errors.GetCategory(err))
	assert.False(t, errors.IsRetryable(err))
}

func TestStorageErrors_Retryable(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	upload := errors.NewStorageError(errors.CodeUploadFailed, "storage: put rpf.idx", cause)
	assert.True(t, errors.IsRetryable(upload))
	assert.True(t, stderrors.Is(upload, cause))
	assert.Equal(t, "[STORAGE:UPLOAD_FAILED] storage: put rpf.idx: connection reset", upload.Error())

	missing := errors.NewStorageError(errors.CodeObjectNotFound, "storage: get mosaic.db", nil)
	assert.False(t, errors.IsRetryable(missing))

	decode := errors.NewDecodeError("frame: 00000010.ON1", cause)
	assert.False(t, errors.IsRetryable(decode))
}
