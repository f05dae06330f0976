package portfile_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/sidecar/pkg/domain"
	"github.com/aretw0/sidecar/pkg/portfile"
	"github.com/aretw0/sidecar/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFile(t *testing.T) *portfile.File {
	t.Helper()
	return portfile.New(filepath.Join(t.TempDir(), portfile.DefaultFileName))
}

func TestFile_Contract(t *testing.T) {
	ports.RunRecordStoreContract(t, newFile(t))
}

func TestDefaultPath(t *testing.T) {
	assert.Equal(t, filepath.Join(os.TempDir(), "tauri-sidecar.port"), portfile.DefaultPath())
	assert.Equal(t, portfile.DefaultPath(), portfile.New("").Path())
}

func TestFile_WritesPlainDecimal(t *testing.T) {
	f := newFile(t)
	require.NoError(t, f.Publish(context.Background(), domain.PortRecord{Port: 41000}))

	data, err := os.ReadFile(f.Path())
	require.NoError(t, err)
	assert.Equal(t, "41000", string(data))
}

func TestFile_ReadsExternallyWrittenValue(t *testing.T) {
	f := newFile(t)
	require.NoError(t, os.WriteFile(f.Path(), []byte("41000\n"), 0o644))

	rec, err := f.ReadRecord(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 41000, rec.Port)
	assert.Equal(t, "file", rec.Source)
	assert.WithinDuration(t, time.Now(), rec.WrittenAt, time.Minute)
}

func TestFile_PartialContentIsNotYetKnown(t *testing.T) {
	for _, content := range []string{"", "  ", "41x", "99999"} {
		f := newFile(t)
		require.NoError(t, os.WriteFile(f.Path(), []byte(content), 0o644))

		_, err := f.ReadRecord(context.Background())
		assert.ErrorIs(t, err, domain.ErrPortNotKnown, "content %q", content)
	}
}

func TestFile_PublishFailureIsAnnouncementFailure(t *testing.T) {
	f := portfile.New(filepath.Join(t.TempDir(), "missing-dir", portfile.DefaultFileName))
	err := f.Publish(context.Background(), domain.PortRecord{Port: 41000})
	assert.ErrorIs(t, err, domain.ErrAnnouncementFailure)
}
