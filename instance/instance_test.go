package instance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue(t *testing.T) {
	t.Run("references compare by key", func(t *testing.T) {
		assert.True(t, Ref(7).Equal(Ref(7)))
		assert.False(t, Ref(7).Equal(Ref(8)))
		assert.False(t, Ref(7).Equal(Scalar("7")))
		assert.Equal(t, "#7", Ref(7).Text())
	})

	t.Run("scalars compare by rendered text", func(t *testing.T) {
		assert.True(t, Scalar(3).Equal(Scalar(int64(3))))
		assert.True(t, Scalar([]byte("ATP")).Equal(Scalar("ATP")))
		assert.True(t, Scalar(true).Equal(Scalar(true)))
		assert.False(t, Scalar(1.5).Equal(Scalar(2.5)))
		assert.Equal(t, "", Scalar(nil).Text())
		assert.False(t, Scalar("x").IsRef())
	})

	t.Run("pending keys", func(t *testing.T) {
		assert.True(t, Key(0).Pending())
		assert.True(t, Key(-3).Pending())
		assert.False(t, Key(12).Pending())
	})
}

func TestBuilder(t *testing.T) {
	inst := NewBuilder(10, "Reaction").
		Refs("input", 1, 2).
		Refs("output", 3).
		Scalars("name", "glycolysis step").
		Set("summation").
		Build()

	assert.Equal(t, Key(10), inst.Key())
	assert.Equal(t, "Reaction", inst.Class())
	assert.Equal(t, []string{"input", "output", "name", "summation"}, inst.Attributes())
	assert.Equal(t, []Key{1, 2}, inst.RefKeys("input"))
	assert.True(t, inst.Has("summation"))
	assert.Empty(t, inst.Values("summation"))
	assert.False(t, inst.Has("catalystActivity"))
	assert.Equal(t, []Key{1, 2, 3}, inst.References())

	first, ok := inst.First("name")
	require.True(t, ok)
	assert.Equal(t, "glycolysis step", first.Text())

	t.Run("values are copies", func(t *testing.T) {
		vs := inst.Values("input")
		vs[0] = Ref(99)
		assert.Equal(t, []Key{1, 2}, inst.RefKeys("input"))
	})

	t.Run("filter prunes without touching the source", func(t *testing.T) {
		pruned := From(inst).Filter(func(attr string, v Value) bool {
			return !(v.IsRef() && v.Key() == 2)
		}).Build()
		assert.Equal(t, []Key{1}, pruned.RefKeys("input"))
		assert.Equal(t, []Key{1, 2}, inst.RefKeys("input"))
		assert.Equal(t, inst.Attributes(), pruned.Attributes())
	})
}

func TestSlice(t *testing.T) {
	s := NewSlice()
	require.True(t, s.Add(NewBuilder(5, "Pathway").Build()))
	require.True(t, s.Add(NewBuilder(2, "Reaction").Build()))
	assert.False(t, s.Add(NewBuilder(5, "Pathway").Build()), "duplicate keys are rejected")

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []Key{2, 5}, s.Keys())
	assert.True(t, s.Has(2))
	assert.False(t, s.Has(3))
	assert.Equal(t, map[string]int{"Pathway": 1, "Reaction": 1}, s.CountByClass())

	replaced := NewBuilder(2, "Reaction").Refs("input", 9).Build()
	assert.True(t, s.Replace(replaced))
	got, ok := s.Get(2)
	require.True(t, ok)
	assert.Same(t, replaced, got)
	assert.False(t, s.Replace(NewBuilder(77, "Reaction").Build()))

	instances := s.Instances()
	require.Len(t, instances, 2)
	assert.Equal(t, Key(2), instances[0].Key())
}
