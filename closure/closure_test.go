package closure

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/slice/errors"
	"github.com/teranos/slice/instance"
	slicetest "github.com/teranos/slice/internal/testing"
	"github.com/teranos/slice/schema"
	"github.com/teranos/slice/store/sqlstore"
)

// sourceGraph seeds a small pathway graph:
//
//	100 TopLevelPathway (released) -> 200 Reaction (released), 300 Reaction (not released)
//	200 -> input 400; 400.created -> 999 (missing)
//	600, 610 regulations and 800 coordinates point at 200
//	601 regulation points at the gated 300
//	500 unreleased pathway containing 200, referenced by nothing
func sourceGraph(t *testing.T) *sqlstore.Store {
	t.Helper()
	s := slicetest.CreateTestStore(t, schema.Default())
	slicetest.Seed(t, s,
		instance.NewBuilder(1, "InstanceEdit").Scalars("note", "curated").Build(),
		instance.NewBuilder(100, "TopLevelPathway").
			Scalars("name", "Metabolism").Scalars("_doRelease", true).
			Refs("created", 1).Refs("hasEvent", 200, 300).Build(),
		instance.NewBuilder(200, "Reaction").
			Scalars("name", "A").Scalars("_doRelease", true).Refs("input", 400).Build(),
		instance.NewBuilder(300, "Reaction").
			Scalars("name", "B").Scalars("_doRelease", false).Build(),
		instance.NewBuilder(400, "SimpleEntity").
			Scalars("name", "ATP").Refs("created", 999).Build(),
		instance.NewBuilder(500, "Pathway").
			Scalars("name", "Draft").Refs("hasEvent", 200).Build(),
		instance.NewBuilder(600, "PositiveRegulation").Refs("regulator", 400).Refs("regulatedEntity", 200).Build(),
		instance.NewBuilder(601, "NegativeRegulation").Refs("regulator", 700).Refs("regulatedEntity", 300).Build(),
		instance.NewBuilder(610, "PositiveRegulation").Refs("regulator", 700).Refs("regulatedEntity", 200).Build(),
		instance.NewBuilder(700, "SimpleEntity").Scalars("name", "Mg2+").Build(),
		instance.NewBuilder(800, "ReactionCoordinates").Refs("locatedEvent", 200).Scalars("sourceX", 10).Build(),
	)
	return s
}

func TestExtract(t *testing.T) {
	ctx := context.Background()
	src := sourceGraph(t)
	e := New(src, Options{Satellites: DefaultSatellites()}, nil)

	sl, err := e.Extract(ctx, []instance.Key{100})
	require.NoError(t, err)
	assert.Equal(t, []instance.Key{1, 100, 200, 400, 600, 610, 700, 800}, sl.Keys())

	t.Run("gated event is pruned from its parent", func(t *testing.T) {
		p, ok := sl.Get(100)
		require.True(t, ok)
		assert.Equal(t, []instance.Key{200}, p.RefKeys("hasEvent"))
	})

	t.Run("dangling reference is pruned", func(t *testing.T) {
		atp, ok := sl.Get(400)
		require.True(t, ok)
		assert.Empty(t, atp.RefKeys("created"))
		assert.Equal(t, "ATP", atp.Values("name")[0].Text())
	})

	t.Run("closure completeness", func(t *testing.T) {
		for _, inst := range sl.Instances() {
			for _, ref := range inst.References() {
				assert.True(t, sl.Has(ref), "%s references %d outside the slice", inst, ref)
			}
		}
	})

	stats := e.Stats()
	assert.Equal(t, 1, stats.Roots)
	assert.Equal(t, 8, stats.Instances)
	assert.Equal(t, 2, stats.EligibleEvents)
	assert.Equal(t, 1, stats.GatedEvents)
	assert.Equal(t, 1, stats.DanglingReferences)
	assert.Equal(t, 2, stats.PrunedReferences)
	assert.Equal(t, 4, stats.SatelliteAdditions)
	assert.Equal(t, 2, stats.SatellitePasses)
}

func TestExtractIdempotent(t *testing.T) {
	ctx := context.Background()
	src := sourceGraph(t)
	e := New(src, Options{Satellites: DefaultSatellites()}, nil)

	first, err := e.Extract(ctx, []instance.Key{100})
	require.NoError(t, err)
	second, err := e.Extract(ctx, []instance.Key{100})
	require.NoError(t, err)
	assert.Equal(t, first.Keys(), second.Keys())
}

func TestExtractWithoutSatellites(t *testing.T) {
	src := sourceGraph(t)
	e := New(src, Options{}, nil)

	sl, err := e.Extract(context.Background(), []instance.Key{100})
	require.NoError(t, err)
	assert.Equal(t, []instance.Key{1, 100, 200, 400}, sl.Keys())
	assert.Equal(t, 0, e.Stats().SatellitePasses)
}

func TestExtractUnreleasedRoot(t *testing.T) {
	tests := []struct {
		name      string
		roots     []instance.Key
		wantKeys  []instance.Key
		wantGated int
	}{
		{
			name:      "unflagged pathway root alone",
			roots:     []instance.Key{500},
			wantKeys:  []instance.Key{},
			wantGated: 1,
		},
		{
			name:      "unflagged root next to a released one",
			roots:     []instance.Key{500, 100},
			wantKeys:  []instance.Key{1, 100, 200, 400},
			wantGated: 2,
		},
		{
			name:      "unflagged reaction root",
			roots:     []instance.Key{300},
			wantKeys:  []instance.Key{},
			wantGated: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := sourceGraph(t)
			e := New(src, Options{}, nil)

			sl, err := e.Extract(context.Background(), tt.roots)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.wantKeys, sl.Keys())
			assert.False(t, sl.Has(500), "roots pass the release gate like any event")
			assert.Equal(t, tt.wantGated, e.Stats().GatedEvents)
		})
	}
}

func TestExtractClasslessInstance(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		roots []instance.Key
	}{
		{name: "reached through a reference", roots: []instance.Key{100}},
		{name: "listed as a root", roots: []instance.Key{900}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := sourceGraph(t)
			_, err := src.DB().ExecContext(ctx, `INSERT INTO "DatabaseObject" ("DB_ID", "_class") VALUES (900, '')`)
			require.NoError(t, err)
			_, err = src.DB().ExecContext(ctx, `UPDATE "DatabaseObject" SET "created" = 900 WHERE "DB_ID" = 400`)
			require.NoError(t, err)

			_, err = New(src, Options{}, nil).Extract(ctx, tt.roots)
			require.Error(t, err)
			assert.True(t, errors.IsDataIntegrityError(err), "%+v", err)
		})
	}
}

func TestExtractErrors(t *testing.T) {
	ctx := context.Background()
	src := sourceGraph(t)

	tests := []struct {
		name  string
		opts  Options
		roots []instance.Key
		check func(error) bool
	}{
		{
			name:  "root missing from store",
			roots: []instance.Key{100, 12345},
			check: errors.IsConfigurationError,
		},
		{
			name:  "unknown event class",
			opts:  Options{EventClass: "Happening"},
			roots: []instance.Key{100},
			check: errors.IsConfigurationError,
		},
		{
			name:  "release flag not an event attribute",
			opts:  Options{ReleaseFlag: "hasEvent"},
			roots: []instance.Key{100},
			check: errors.IsConfigurationError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(src, tt.opts, nil).Extract(ctx, tt.roots)
			require.Error(t, err)
			assert.True(t, tt.check(err), "%+v", err)
		})
	}
}

func TestUnusableSatelliteRulesAreSkipped(t *testing.T) {
	src := sourceGraph(t)
	e := New(src, Options{Satellites: []Rule{
		{Class: "Nope", Attribute: "x"},
		{Class: "ReactionCoordinates", Attribute: "sourceX"},
	}}, nil)

	sl, err := e.Extract(context.Background(), []instance.Key{100})
	require.NoError(t, err)
	assert.False(t, sl.Has(800))
}
