package server

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nx-ipc/result"
	"nx-ipc/version"
)

type nopObject struct{}

func (nopObject) Commands() []CommandMetadata { return nil }

func TestDomainTableAllocatesLowestFree(t *testing.T) {
	d := NewDomainTable()
	for want := uint32(1); want <= 3; want++ {
		id, err := d.AllocateID(nopObject{})
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}

	require.NoError(t, d.Deallocate(2))
	id, err := d.AllocateID(nopObject{})
	require.NoError(t, err)
	assert.Equal(t, uint32(2), id)

	require.NoError(t, d.AllocateSpecificID(10, nopObject{}))
	assert.ErrorIs(t, d.AllocateSpecificID(3, nopObject{}), result.ResultObjectIDAlreadyAllocated)
	assert.ErrorIs(t, d.AllocateSpecificID(0, nopObject{}), result.ResultObjectIDAlreadyAllocated)

	id, err = d.AllocateID(nopObject{})
	require.NoError(t, err)
	assert.Equal(t, uint32(4), id)
	assert.Equal(t, 5, d.Len())

	_, ok := d.Find(10)
	assert.True(t, ok)
	_, ok = d.Find(5)
	assert.False(t, ok)
	assert.ErrorIs(t, d.Deallocate(5), result.ResultDomainNotFound)
}

func TestMatch(t *testing.T) {
	errOld := errors.New("old")
	errNew := errors.New("new")
	errAny := errors.New("any")
	returns := func(err error) Handler {
		return func(context.Context, *Request) error { return err }
	}
	cutover := version.New(10, 0, 0)
	table := []CommandMetadata{
		{ID: 1, Versions: version.To(version.New(9, 2, 0)), Handler: returns(errOld)},
		{ID: 1, Versions: version.From(cutover), Handler: returns(errNew)},
		Command(1, returns(errAny)),
		Command(2, returns(errAny)),
	}

	tests := []struct {
		id   uint32
		v    version.Version
		want error
	}{
		{1, version.New(9, 0, 0), errOld},
		{1, version.New(9, 2, 0), errOld},
		{1, cutover, errNew},
		// Falls through to the unbounded entry.
		{1, version.New(9, 5, 0), errAny},
		{2, version.New(1, 0, 0), errAny},
	}
	for _, tt := range tests {
		m, ok := Match(table, tt.id, tt.v)
		require.True(t, ok, "id %d at %v", tt.id, tt.v)
		assert.Equal(t, tt.want, m.Handler(context.Background(), nil), "id %d at %v", tt.id, tt.v)
	}

	_, ok := Match(table, 3, cutover)
	assert.False(t, ok)
	_, ok = Match(table[:2], 1, version.New(9, 5, 0))
	assert.False(t, ok)

	allocs := testing.AllocsPerRun(100, func() {
		Match(table, 1, cutover)
		Match(table, 3, cutover)
	})
	assert.Zero(t, allocs)
}
