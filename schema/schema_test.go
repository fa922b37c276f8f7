package schema

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/slice/db"
	"github.com/teranos/slice/errors"
)

func TestDefaultSchema(t *testing.T) {
	s := Default()

	assert.Equal(t, "DatabaseObject", s.Root())
	assert.Equal(t, "1.0.0", s.Version())

	t.Run("ancestors are root first", func(t *testing.T) {
		assert.Equal(t,
			[]string{"DatabaseObject", "PhysicalEntity", "GenomeEncodedEntity", "EntityWithAccessionedSequence"},
			s.Ancestors("EntityWithAccessionedSequence"))
		assert.Nil(t, s.Ancestors("NoSuchClass"))
	})

	t.Run("inherited attributes are valid", func(t *testing.T) {
		assert.True(t, s.Valid("Reaction", "input"))
		assert.True(t, s.Valid("Reaction", "literatureReference"))
		assert.True(t, s.Valid("Reaction", "created"))
		assert.False(t, s.Valid("Reaction", "hasEvent"))
		assert.True(t, s.Valid("ProteinDrug", "species"))
		assert.False(t, s.Valid("ChemicalDrug", "species"))
	})

	t.Run("owner and root attributes", func(t *testing.T) {
		a, ok := s.Attribute("Reaction", "input")
		require.True(t, ok)
		assert.Equal(t, "ReactionlikeEvent", a.Owner)
		assert.True(t, a.IsInstance())
		assert.True(t, a.Multiple)
		assert.False(t, s.IsRootAttribute(a))

		created, ok := s.Attribute("Reaction", "created")
		require.True(t, ok)
		assert.True(t, s.IsRootAttribute(created))
	})

	t.Run("attribute order is root first", func(t *testing.T) {
		attrs := s.Attributes("Pathway")
		require.NotEmpty(t, attrs)
		assert.Equal(t, "created", attrs[0].Name)
		assert.Equal(t, "hasEvent", attrs[len(attrs)-1].Name)
		assert.Len(t, s.OwnAttributes("Pathway"), 1)
	})

	t.Run("is-a and subclasses", func(t *testing.T) {
		assert.True(t, s.IsA("BlackBoxEvent", "Event"))
		assert.True(t, s.IsA("Event", "Event"))
		assert.False(t, s.IsA("Complex", "Event"))
		assert.False(t, s.IsA("Unknown", "Event"))
		assert.Equal(t, []string{"CandidateSet", "DefinedSet", "EntitySet"}, s.Subclasses("EntitySet"))
	})
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		classes []*Class
		wantErr string
	}{
		{
			name:    "no root",
			classes: []*Class{{Name: "A", Parent: "B"}, {Name: "B", Parent: "A"}},
			wantErr: "no root",
		},
		{
			name:    "two roots",
			classes: []*Class{{Name: "A"}, {Name: "B"}},
			wantErr: "two root classes",
		},
		{
			name:    "unknown parent",
			classes: []*Class{{Name: "A"}, {Name: "B", Parent: "C"}},
			wantErr: "unknown parent",
		},
		{
			name: "shadowed attribute",
			classes: []*Class{
				{Name: "A", Own: []*Attribute{{Name: "x", Type: TypeString}}},
				{Name: "B", Parent: "A", Own: []*Attribute{{Name: "x", Type: TypeString}}},
			},
			wantErr: "shadows",
		},
		{
			name:    "bad type",
			classes: []*Class{{Name: "A", Own: []*Attribute{{Name: "x", Type: "blob"}}}},
			wantErr: "unknown type",
		},
		{
			name:    "duplicate class",
			classes: []*Class{{Name: "A"}, {Name: "A"}},
			wantErr: "defined twice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("1.0.0", tt.classes...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTOMLRoundTrip(t *testing.T) {
	src := `
version = "2.1.0"

[[class]]
name = "Root"

  [[class.attribute]]
  name = "created"
  type = "instance"
  allowed = ["Edit"]

[[class]]
name = "Edit"
parent = "Root"

  [[class.attribute]]
  name = "note"
  type = "string"
  multiple = true
  defining = true
`
	s, err := ParseTOML(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, "2.1.0", s.Version())

	note, ok := s.Attribute("Edit", "note")
	require.True(t, ok)
	assert.True(t, note.Multiple)
	assert.True(t, note.Defining)

	var buf bytes.Buffer
	require.NoError(t, WriteTOML(&buf, s))

	again, err := ParseTOML(&buf)
	require.NoError(t, err)
	assert.Equal(t, s.Ancestors("Edit"), again.Ancestors("Edit"))
	created, ok := again.Attribute("Edit", "created")
	require.True(t, ok)
	assert.Equal(t, []string{"Edit"}, created.Allowed)

	t.Run("unknown fields are rejected", func(t *testing.T) {
		_, err := ParseTOML(strings.NewReader("version = \"1\"\ncolour = \"red\"\n"))
		require.Error(t, err)
	})
}

func TestSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	database, err := db.OpenWithMigrations(filepath.Join(t.TempDir(), "schema.db"), nil)
	require.NoError(t, err)
	defer database.Close()

	_, err = Load(ctx, database)
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))

	want := Default()
	require.NoError(t, Save(ctx, database, want))

	got, err := Load(ctx, database)
	require.NoError(t, err)
	assert.Equal(t, want.Version(), got.Version())
	assert.Equal(t, want.Root(), got.Root())
	assert.Len(t, got.Classes(), len(want.Classes()))
	for _, c := range want.Classes() {
		assert.Equal(t, want.Ancestors(c.Name), got.Ancestors(c.Name), c.Name)
		for _, a := range want.Attributes(c.Name) {
			ga, ok := got.Attribute(c.Name, a.Name)
			require.True(t, ok, "%s.%s", c.Name, a.Name)
			assert.Equal(t, a.Type, ga.Type)
			assert.Equal(t, a.Multiple, ga.Multiple)
			assert.Equal(t, a.Owner, ga.Owner)
		}
	}

	t.Run("save replaces previous contents", func(t *testing.T) {
		small, err := New("1.1.0", &Class{Name: "Only"})
		require.NoError(t, err)
		require.NoError(t, Save(ctx, database, small))

		got, err := Load(ctx, database)
		require.NoError(t, err)
		assert.Len(t, got.Classes(), 1)
		assert.Equal(t, "1.1.0", got.Version())
	})
}

func TestLoadWithoutSchemaTables(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "bare.db"), nil)
	require.NoError(t, err)
	defer database.Close()

	_, err = Load(context.Background(), database)
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err), "got %v", err)
}

func TestWriteInsideCallerTransaction(t *testing.T) {
	ctx := context.Background()
	database, err := db.OpenWithMigrations(filepath.Join(t.TempDir(), "schema.db"), nil)
	require.NoError(t, err)
	defer database.Close()

	tx, err := database.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, Write(ctx, tx, database.Dialect, Default()))
	require.NoError(t, tx.Rollback())

	_, err = Load(ctx, database)
	assert.True(t, errors.IsNotFoundError(err), "a rolled back write leaves no schema")
}

func TestCompatible(t *testing.T) {
	mk := func(v string) *Schema {
		s, err := New(v, &Class{Name: "Root"})
		require.NoError(t, err)
		return s
	}
	assert.True(t, Compatible(mk("1.0.0"), mk("1.4.2")))
	assert.False(t, Compatible(mk("1.0.0"), mk("2.0.0")))
	assert.True(t, Compatible(mk("draft"), mk("draft")))
	assert.False(t, Compatible(mk("draft"), mk("1.0.0")))
}
