package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func mustModel(t *testing.T, modelID, displayName string, dims int, dist Distance) ModelDescriptor {
	t.Helper()
	m, err := NewModelDescriptor(modelID, displayName, dims, dist, "test model")
	require.NoError(t, err)
	return m
}

func TestNewModelDescriptor_Validation(t *testing.T) {
	_, err := NewModelDescriptor("", "display", 384, DistanceCosine, "")
	require.Error(t, err)

	_, err = NewModelDescriptor("id", "", 384, DistanceCosine, "")
	require.Error(t, err)

	_, err = NewModelDescriptor("id", "display", 0, DistanceCosine, "")
	require.Error(t, err)

	_, err = NewModelDescriptor("id", "display", 384, Distance("manhattan"), "")
	require.Error(t, err)

	m, err := NewModelDescriptor("id", "display", 384, DistanceCosine, "desc")
	require.NoError(t, err)
	require.Equal(t, "id", m.ModelID())
	require.Equal(t, "display", m.DisplayName())
	require.Equal(t, 384, m.Dimensions())
	require.Equal(t, DistanceCosine, m.Distance())
	require.Equal(t, "desc", m.Description())
}

func TestRegistry_New_RejectsDuplicates(t *testing.T) {
	a := mustModel(t, "bge-small", "BGE Small", 384, DistanceCosine)
	b := mustModel(t, "bge-small", "BGE Small Again", 384, DistanceCosine)

	_, err := New(a, b)
	require.Error(t, err)
}

func TestRegistry_GetAndAll(t *testing.T) {
	a := mustModel(t, "bge-small", "BGE Small", 384, DistanceCosine)
	b := mustModel(t, "bge-large", "BGE Large", 1024, DistanceCosine)

	r, err := New(a, b)
	require.NoError(t, err)

	got, ok := r.Get("bge-small")
	require.True(t, ok)
	require.Equal(t, a, got)

	_, ok = r.Get("missing")
	require.False(t, ok)

	all := r.All()
	require.Equal(t, []ModelDescriptor{a, b}, all)
}

func TestRegistry_MustGet_PanicsOnMissing(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	require.Panics(t, func() {
		r.MustGet("nope")
	})
}

func TestRegistry_Validate(t *testing.T) {
	a := mustModel(t, "bge-small", "BGE Small", 384, DistanceCosine)
	r, err := New(a)
	require.NoError(t, err)

	require.NoError(t, r.Validate("bge-small"))
	require.Error(t, r.Validate("bge-small", "unknown"))
}
