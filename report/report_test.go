package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/teranos/slice/compare"
	"github.com/teranos/slice/errors"
	"github.com/teranos/slice/revision"
)

func records() []revision.Record {
	return []revision.Record{
		{Key: 10, Class: "Reaction", Name: "ATP hydrolysis", Actions: []compare.Action{
			{Type: compare.Modify, Object: "name"},
			{Type: compare.Add, Object: "input"},
		}},
		{Key: 1, Class: "Pathway", Name: "Apoptosis", Actions: []compare.Action{
			{Type: compare.Update, Object: compare.ContainedRLE},
		}},
	}
}

func TestRenderTable(t *testing.T) {
	pterm.DisableStyling()
	defer pterm.EnableStyling()

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, "table", records()))

	out := buf.String()
	assert.Contains(t, out, "Apoptosis")
	assert.Contains(t, out, "UPDATE(containedRLE)")
	assert.Contains(t, out, "ADD(input) MODIFY(name)")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("Apoptosis")), bytes.Index(buf.Bytes(), []byte("ATP hydrolysis")))
}

func TestRenderTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, "table", nil))
	assert.Equal(t, "No changes since the previous release.\n", buf.String())
}

func TestRenderYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, "yaml", records()))

	var got []struct {
		Key     int64  `yaml:"key"`
		Class   string `yaml:"class"`
		Actions []struct {
			Type   string `yaml:"type"`
			Object string `yaml:"object"`
		} `yaml:"actions"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].Key)
	assert.Equal(t, "UPDATE", got[0].Actions[0].Type)
	assert.Equal(t, "ADD", got[1].Actions[0].Type)
	assert.Equal(t, "input", got[1].Actions[0].Object)
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, "json", records()))

	type action struct {
		Type   string `json:"type"`
		Object string `json:"object"`
	}
	var got []struct {
		Class   string   `json:"class"`
		Actions []action `json:"actions"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "Pathway", got[0].Class)
	assert.Equal(t, []action{{Type: "ADD", Object: "input"}, {Type: "MODIFY", Object: "name"}}, got[1].Actions)
}

func TestRenderUnknownFormat(t *testing.T) {
	err := Render(&bytes.Buffer{}, "xml", records())
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))
}

func TestRenderDoesNotReorderInput(t *testing.T) {
	in := records()
	require.NoError(t, Render(&bytes.Buffer{}, "json", in))
	assert.Equal(t, records(), in)
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "changes.json")
	require.NoError(t, WriteFile(path, "json", records()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"containedRLE"`)
}
