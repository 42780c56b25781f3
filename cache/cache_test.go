package cache

import (
	"errors"
	"testing/fstest"

	"testing"

	"github.com/stretchr/testify/require"
)

func TestLazy_ComputesOnce(t *testing.T) {
	calls := 0
	l := NewLazy(func() (int, error) {
		calls++
		return 42, nil
	})
	for i := 0; i < 5; i++ {
		v, err := l.Get()
		require.NoError(t, err)
		require.Equal(t, 42, v)
	}
	require.Equal(t, 1, calls)
}

func TestLazy_CachesError(t *testing.T) {
	calls := 0
	sentinel := errors.New("boom")
	l := NewLazy(func() (int, error) {
		calls++
		return 0, sentinel
	})
	_, err1 := l.Get()
	_, err2 := l.Get()
	require.Equal(t, sentinel, err1)
	require.Equal(t, sentinel, err2)
	require.Equal(t, 1, calls)
}

func TestRegistry_InternsByName(t *testing.T) {
	fsys := fstest.MapFS{
		"OpenURL.ipa": &fstest.MapFile{Data: []byte("fake-ipa-bytes")},
	}
	reg := NewRegistry(fsys)

	a := reg.Get("OpenURL.ipa")
	b := reg.Get("OpenURL.ipa")
	require.Same(t, a, b)

	pathA, err := a.ToPath()
	require.NoError(t, err)
	pathB, err := b.ToPath()
	require.NoError(t, err)
	require.Equal(t, pathA, pathB)
}

func TestRegistry_DifferentNamesDifferentInstances(t *testing.T) {
	fsys := fstest.MapFS{
		"a.bin": &fstest.MapFile{Data: []byte("a")},
		"b.bin": &fstest.MapFile{Data: []byte("b")},
	}
	reg := NewRegistry(fsys)
	a := reg.Get("a.bin")
	b := reg.Get("b.bin")
	require.NotSame(t, a, b)
}
