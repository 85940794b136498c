package blobstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/keepsake/internal/models"
	"github.com/dmitrijs2005/keepsake/internal/syncerr"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	s := New(t.TempDir())

	name, err := s.Save([]byte("payload"), models.KindPhoto)
	require.NoError(t, err)
	assert.NotEmpty(t, name)

	got, err := s.Load(name, models.KindPhoto)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)

	assert.True(t, s.Exists(name, models.KindPhoto))
}

func TestSaveAs_Idempotent(t *testing.T) {
	s := New(t.TempDir())

	require.NoError(t, s.SaveAs("stable.mov", []byte("v1"), models.KindVideo))
	require.NoError(t, s.SaveAs("stable.mov", []byte("v2"), models.KindVideo))

	got, err := s.Load("stable.mov", models.KindVideo)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func TestLoad_Missing(t *testing.T) {
	s := New(t.TempDir())

	_, err := s.Load("nope.jpg", models.KindPhoto)
	require.ErrorIs(t, err, syncerr.ErrNotFound)
}

func TestDelete(t *testing.T) {
	s := New(t.TempDir())

	name, err := s.Save([]byte("x"), models.KindAudio)
	require.NoError(t, err)

	require.NoError(t, s.Delete(name, models.KindAudio))
	assert.False(t, s.Exists(name, models.KindAudio))

	// deleting again is a no-op
	require.NoError(t, s.Delete(name, models.KindAudio))
}

func TestUsage(t *testing.T) {
	s := New(t.TempDir())

	_, err := s.Save(make([]byte, 100), models.KindPhoto)
	require.NoError(t, err)
	_, err = s.Save(make([]byte, 50), models.KindVideo)
	require.NoError(t, err)

	total, err := s.Usage()
	require.NoError(t, err)
	assert.Equal(t, int64(150), total)
}

func TestUsage_EmptyStore(t *testing.T) {
	s := New(t.TempDir() + "/never-created")

	total, err := s.Usage()
	require.NoError(t, err)
	assert.Zero(t, total)
}
