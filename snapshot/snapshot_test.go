package snapshot_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/slice/instance"
	slicetest "github.com/teranos/slice/internal/testing"
	"github.com/teranos/slice/schema"
	"github.com/teranos/slice/snapshot"
)

func TestLoad(t *testing.T) {
	s := slicetest.CreateTestStore(t, schema.Default())
	slicetest.Seed(t, s,
		instance.NewBuilder(1, "Pathway").Scalars("name", "P1").Refs("hasEvent", 10).Build(),
		instance.NewBuilder(10, "Reaction").Scalars("name", "A").Refs("input", 20).Build(),
		instance.NewBuilder(20, "SimpleEntity").Scalars("name", "ATP").Build(),
	)

	snap, err := snapshot.Load(context.Background(), "previous", s, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, []instance.Key{1, 10, 20}, snap.Slice.Keys())

	rxn, ok := snap.Get(10)
	require.True(t, ok)
	assert.Equal(t, []instance.Key{20}, rxn.RefKeys("input"))

	_, ok = snap.Attribute(rxn, "input")
	assert.True(t, ok)
	_, ok = snap.Attribute(rxn, "hasEvent")
	assert.False(t, ok)
	assert.True(t, snap.IsA(rxn, "Event"))
	assert.False(t, snap.IsA(nil, "Event"))
}

func TestNilSnapshotLookup(t *testing.T) {
	var s *snapshot.Snapshot
	_, ok := s.Get(1)
	assert.False(t, ok)
}
