package keypath_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/treestore/keypath"
)

func TestStringRoundTrip(t *testing.T) {
	paths := []keypath.Path{
		keypath.New("users"),
		keypath.New("users", "alice", "settings"),
		keypath.New("a/b", "c d", "100%"),
	}
	for _, p := range paths {
		t.Run(p.String(), func(t *testing.T) {
			back, err := keypath.Parse(p.String())
			require.NoError(t, err)
			assert.Equal(t, p, back)
		})
	}
	assert.Equal(t, "a%2Fb/c%20d/100%25", keypath.New("a/b", "c d", "100%").String())
}

func TestParseTrimsSlashes(t *testing.T) {
	p, err := keypath.Parse("/notes/today/")
	require.NoError(t, err)
	assert.Equal(t, keypath.New("notes", "today"), p)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		path keypath.Path
		min  int
		ok   bool
	}{
		{"empty", nil, 1, false},
		{"bucket only", keypath.New("b"), 1, true},
		{"empty segment", keypath.New("b", ""), 1, false},
		{"below minimum", keypath.New("b"), 2, false},
		{"at minimum", keypath.New("b", "k"), 2, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.path.ValidateMin(tc.min)
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, keypath.ErrInvalidPath), "got %v", err)
		})
	}

	_, err := keypath.Parse("//")
	assert.ErrorIs(t, err, keypath.ErrInvalidPath)
	_, err = keypath.Parse("a//b")
	assert.ErrorIs(t, err, keypath.ErrInvalidPath)
}

func TestNavigation(t *testing.T) {
	p := keypath.New("notes", "2024", "jan")
	assert.Equal(t, "notes", p.Bucket())
	assert.Equal(t, keypath.New("2024", "jan"), p.Rest())
	assert.Equal(t, keypath.New("notes", "2024"), p.Parent())
	assert.True(t, p.HasPrefix(keypath.New("notes")))
	assert.False(t, p.HasPrefix(keypath.New("tasks")))
	assert.True(t, p.Equal(keypath.New("notes", "2024", "jan")))

	c := p.Parent().Child("feb")
	assert.Equal(t, keypath.New("notes", "2024", "feb"), c)
	assert.Equal(t, keypath.New("notes", "2024", "jan"), p, "Child must not alias")
	assert.Nil(t, keypath.New("notes").Rest())
}
