package release

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/slice/am"
	"github.com/teranos/slice/closure"
	"github.com/teranos/slice/compare"
	"github.com/teranos/slice/db"
	"github.com/teranos/slice/errors"
	"github.com/teranos/slice/instance"
	slicetest "github.com/teranos/slice/internal/testing"
	"github.com/teranos/slice/logger"
	"github.com/teranos/slice/revision"
	"github.com/teranos/slice/schema"
	"github.com/teranos/slice/store/sqlstore"
)

// fixture is a curated source store, a root list and a config pointing a
// fresh target next to them.
type fixture struct {
	dir string
	cfg *am.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	src := slicetest.CreateFileStore(t, filepath.Join(dir, "curated.db"), schema.Default())
	slicetest.Seed(t, src,
		instance.NewBuilder(1, "InstanceEdit").Scalars("note", "curated").Build(),
		instance.NewBuilder(100, "TopLevelPathway").
			Scalars("name", "Metabolism").Scalars("_doRelease", true).
			Refs("created", 1).Refs("hasEvent", 200, 300).Build(),
		instance.NewBuilder(200, "Reaction").
			Scalars("name", "A").Scalars("_doRelease", true).Refs("input", 400).Build(),
		instance.NewBuilder(300, "Reaction").
			Scalars("name", "B").Scalars("_doRelease", false).Build(),
		instance.NewBuilder(400, "SimpleEntity").Scalars("name", "ATP").Build(),
		instance.NewBuilder(600, "PositiveRegulation").Refs("regulator", 400).Refs("regulatedEntity", 200).Build(),
	)

	roots := filepath.Join(dir, "roots.txt")
	require.NoError(t, os.WriteFile(roots, []byte("# release roots\n100\tMetabolism\n"), 0644))

	return &fixture{dir: dir, cfg: &am.Config{
		Source:  am.StoreConfig{DSN: filepath.Join(dir, "curated.db")},
		Target:  am.StoreConfig{DSN: filepath.Join(dir, "slice88.db")},
		Release: am.ReleaseConfig{Number: 88, Date: "2026-12-01", RootFile: roots},
		Slice:   am.SliceConfig{Satellites: closure.DefaultSatellites()},
	}}
}

// previousRelease writes the last release's slice: the same pathway, with
// reaction 200 not yet having its input.
func (f *fixture) previousRelease(t *testing.T) {
	t.Helper()
	prev := slicetest.CreateFileStore(t, filepath.Join(f.dir, "slice87.db"), schema.Default())
	slicetest.Seed(t, prev,
		instance.NewBuilder(100, "TopLevelPathway").Scalars("name", "Metabolism").Refs("hasEvent", 200).Build(),
		instance.NewBuilder(200, "Reaction").Scalars("name", "A").Build(),
	)
	f.cfg.Previous = am.StoreConfig{DSN: filepath.Join(f.dir, "slice87.db")}
	f.cfg.Release.TrackRevisions = true
}

func openTargetForTest(t *testing.T, dsn string) *sqlstore.Store {
	t.Helper()
	database, err := db.Open(dsn, nil)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	s, err := sqlstore.Open(context.Background(), database, nil, sqlstore.Options{})
	require.NoError(t, err)
	return s
}

func TestRun(t *testing.T) {
	f := newFixture(t)

	p := New(Options{Config: f.cfg, RunID: "run-88"}, nil)
	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "run-88", res.Stats.RunID)
	assert.Equal(t, 1, res.Stats.Roots)
	assert.Equal(t, 5, res.Stats.Instances)
	assert.Equal(t, 1, res.Stats.GatedEvents)
	assert.Equal(t, 1, res.Stats.SatelliteAdditions)
	assert.Equal(t, 5, res.Stats.Written)
	assert.Equal(t, 3, res.Stats.Deferred, "created and hasEvent on 100, input on 200")
	assert.Equal(t, 1, res.Stats.PrunedReferences)
	assert.Equal(t, map[string]int{
		"InstanceEdit": 1, "TopLevelPathway": 1, "Reaction": 1, "SimpleEntity": 1, "PositiveRegulation": 1,
	}, res.Stats.PerClass)
	assert.Empty(t, res.Records, "revision tracking is off")

	target := openTargetForTest(t, f.cfg.Target.DSN)
	exists, err := target.Exists(context.Background(), []instance.Key{1, 100, 200, 300, 400, 600})
	require.NoError(t, err)
	assert.Equal(t, map[instance.Key]bool{1: true, 100: true, 200: true, 400: true, 600: true}, exists)

	releases, err := target.Releases(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{88}, releases)
}

func TestRunLogsCarryRunID(t *testing.T) {
	f := newFixture(t)
	core, logs := observer.New(zapcore.InfoLevel)

	_, err := New(Options{Config: f.cfg, RunID: "run-logs"}, zap.New(core).Sugar()).Run(context.Background())
	require.NoError(t, err)

	for _, msg := range []string{"Closure complete", "Slice committed", "Release batch complete"} {
		entries := logs.FilterMessage(msg).All()
		require.NotEmpty(t, entries, msg)
		assert.Equal(t, "run-logs", entries[0].ContextMap()[logger.FieldRunID], msg)
	}
}

func TestRunWithRevisions(t *testing.T) {
	f := newFixture(t)
	f.previousRelease(t)

	res, err := New(Options{Config: f.cfg}, nil).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Records, 2)
	assert.Equal(t, revision.Record{
		Key: 100, Class: "TopLevelPathway", Name: "Metabolism",
		Actions: []compare.Action{{Type: compare.Update, Object: compare.ContainedRLE}},
	}, res.Records[0])
	assert.Equal(t, []compare.Action{{Type: compare.Add, Object: "input"}}, res.Records[1].Actions)
	assert.Equal(t, 2, res.Stats.ChangeRecords)

	target := openTargetForTest(t, f.cfg.Target.DSN)
	var rows int
	require.NoError(t, target.DB().QueryRow(`SELECT COUNT(*) FROM slice_revision WHERE release_number = 88`).Scan(&rows))
	assert.Equal(t, 2, rows)
}

func TestDiffWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.previousRelease(t)

	res, err := New(Options{Config: f.cfg}, nil).Diff(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Records, 2)
	assert.Zero(t, res.Stats.Written)

	_, err = os.Stat(f.cfg.Target.DSN)
	assert.True(t, os.IsNotExist(err), "diff must not create the target store")
}

func TestRunConfigurationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *fixture)
	}{
		{name: "source equals target", mutate: func(f *fixture) { f.cfg.Target.DSN = f.cfg.Source.DSN }},
		{name: "missing root file", mutate: func(f *fixture) { f.cfg.Release.RootFile = filepath.Join(f.dir, "none.txt") }},
		{name: "tracking without previous", mutate: func(f *fixture) { f.cfg.Release.TrackRevisions = true }},
		{name: "root not in source", mutate: func(f *fixture) {
			require.NoError(t, os.WriteFile(f.cfg.Release.RootFile, []byte("100\n4242\n"), 0644))
		}},
		{name: "missing source file", mutate: func(f *fixture) { f.cfg.Source.DSN = filepath.Join(f.dir, "absent.db") }},
		{name: "source without schema", mutate: func(f *fixture) {
			f.cfg.Source.DSN = filepath.Join(f.dir, "empty.db")
			database, err := db.OpenWithMigrations(f.cfg.Source.DSN, nil)
			require.NoError(t, err)
			require.NoError(t, database.Close())
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			target := f.cfg.Target.DSN
			tt.mutate(f)

			_, err := New(Options{Config: f.cfg}, nil).Run(context.Background())
			require.Error(t, err)
			assert.True(t, errors.IsConfigurationError(err), "got %v", err)

			_, statErr := os.Stat(target)
			assert.True(t, os.IsNotExist(statErr), "a rejected run must not create the target store")
			_, statErr = os.Stat(filepath.Join(f.dir, "absent.db"))
			assert.True(t, os.IsNotExist(statErr), "source stores are never created")
		})
	}
}

func TestCommitFailureLeavesTargetAsFound(t *testing.T) {
	bad := instance.NewSlice()
	bad.Add(instance.NewBuilder(1, "InstanceEdit").Scalars("note", "ok").Build())
	bad.Add(instance.NewBuilder(2, "Polymer").Scalars("minUnitCount", "not-a-number").Build())

	tests := []struct {
		name     string
		existing bool
	}{
		{name: "fresh target is removed", existing: false},
		{name: "existing target keeps its state", existing: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.existing {
				slicetest.CreateFileStore(t, f.cfg.Target.DSN, schema.Default())
			}

			_, err := New(Options{Config: f.cfg}, nil).commit(context.Background(), schema.Default(), bad, nil)
			require.Error(t, err)
			assert.True(t, errors.IsCommitError(err), "got %v", err)

			_, statErr := os.Stat(f.cfg.Target.DSN)
			if !tt.existing {
				assert.True(t, os.IsNotExist(statErr), "no half-provisioned target remains")
				return
			}
			require.NoError(t, statErr)
			target := openTargetForTest(t, f.cfg.Target.DSN)
			exists, err := target.Exists(context.Background(), []instance.Key{1, 2})
			require.NoError(t, err)
			assert.Empty(t, exists)
			releases, err := target.Releases(context.Background())
			require.NoError(t, err)
			assert.Empty(t, releases)
		})
	}
}

func TestRunIntoTargetWithForeignSchema(t *testing.T) {
	f := newFixture(t)

	// a target provisioned with an older schema that lacks _displayName and
	// the regulation classes
	old, err := schema.New("0.9.0",
		&schema.Class{Name: "DatabaseObject", Own: []*schema.Attribute{
			{Name: "created", Type: schema.TypeInstance},
		}},
		&schema.Class{Name: "InstanceEdit", Parent: "DatabaseObject"},
	)
	require.NoError(t, err)
	slicetest.CreateFileStore(t, f.cfg.Target.DSN, old)

	_, err = New(Options{Config: f.cfg}, nil).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err), "classes missing from the target are rejected before writing")

	target := openTargetForTest(t, f.cfg.Target.DSN)
	releases, err := target.Releases(context.Background())
	require.NoError(t, err)
	assert.Empty(t, releases)
}

func TestStatsTextfile(t *testing.T) {
	stats := Stats{RunID: "run-1", Release: 88, Roots: 2, Instances: 40, Written: 40,
		PerClass: map[string]int{"Reaction": 12, "Pathway": 2}}
	path := filepath.Join(t.TempDir(), "slice.prom")

	require.NoError(t, stats.WriteTextfile(path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	out := string(raw)
	assert.Contains(t, out, `slice_release_instances{release="88"} 40`)
	assert.Contains(t, out, `slice_release_class_instances{class="Reaction",release="88"} 12`)

	rows := stats.Rows()
	assert.Equal(t, [2]string{"Run", "run-1"}, rows[0])
	assert.Equal(t, [2]string{"  Pathway", "2"}, rows[len(rows)-2])
}
