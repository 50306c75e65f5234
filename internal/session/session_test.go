package session

import (
	"testing"

	"github.com/geotag/photomap/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var loc = core.Coords{Latitude: 12.9716, Longitude: 77.5946}

func TestBeginUpload_RequiresBothInputs(t *testing.T) {
	s := New()

	_, err := s.BeginUpload()
	assert.ErrorIs(t, err, core.ErrMissingImage)

	s.SetImage(core.ImageRef{URI: "file:///a.jpg"})
	_, err = s.BeginUpload()
	assert.ErrorIs(t, err, core.ErrMissingLocation)

	s.SetLocation(loc)
	assert.True(t, s.CanUpload())

	snap, err := s.BeginUpload()
	require.NoError(t, err)
	assert.Equal(t, "file:///a.jpg", snap.Image.URI)
	assert.Equal(t, loc, snap.Location)
}

func TestBeginUpload_LatchRejectsSecondAttempt(t *testing.T) {
	s := New()
	s.SetImage(core.ImageRef{URI: "a"})
	s.SetLocation(loc)

	_, err := s.BeginUpload()
	require.NoError(t, err)
	assert.False(t, s.CanUpload())

	_, err = s.BeginUpload()
	assert.ErrorIs(t, err, core.ErrUploadInProgress)
}

func TestEndUpload_SuccessClearsImageKeepsLocation(t *testing.T) {
	s := New()
	s.SetImage(core.ImageRef{URI: "a"})
	s.SetLocation(loc)
	_, err := s.BeginUpload()
	require.NoError(t, err)

	s.EndUpload(true)

	st := s.State()
	assert.Nil(t, st.Image)
	require.NotNil(t, st.Location)
	assert.Equal(t, loc, *st.Location)
	assert.False(t, st.Uploading)
}

func TestEndUpload_FailureKeepsSession(t *testing.T) {
	s := New()
	s.SetImage(core.ImageRef{URI: "a"})
	s.SetLocation(loc)
	_, err := s.BeginUpload()
	require.NoError(t, err)

	s.EndUpload(false)

	st := s.State()
	require.NotNil(t, st.Image)
	assert.Equal(t, "a", st.Image.URI)
	assert.True(t, st.CanUpload)
}

func TestSetImage_LastWriteWinsAndClear(t *testing.T) {
	s := New()
	s.SetImage(core.ImageRef{URI: "first"})
	s.SetImage(core.ImageRef{URI: "second"})
	assert.Equal(t, "second", s.State().Image.URI)

	s.ClearImage()
	assert.Nil(t, s.State().Image)
}

func TestOnChange_NotifiedAfterMutation(t *testing.T) {
	s := New()
	var states []State
	s.OnChange(func(st State) { states = append(states, st) })

	s.SetLocation(loc)
	s.SetImage(core.ImageRef{URI: "a"})

	require.Len(t, states, 2)
	assert.False(t, states[0].CanUpload)
	assert.True(t, states[1].CanUpload)
}
