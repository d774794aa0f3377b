package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const postsYAML = `resources:
  - name: posts
    provider: api
    display_attr: title
    default_params:
      limit: 20
    schema:
      type: object
      required: [title]
      properties:
        title: {type: string}
        id: {type: integer}
        status: {type: string}
    actions:
      publish:
        label: Publish
        visible: record != None and record["status"] == "draft"
        script: |
          result = update_one(key, {"status": "published"})
    relations:
      comments:
        path: comments
`

const usersCUE = `resources: [{
	name:     "users"
	provider: "api"
	key:      "uid"
	schema: {
		type: "object"
		properties: {
			uid: type:   "string"
			email: type: "string"
			name: type:  "string"
		}
	}
}]
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadYAML(t *testing.T) {
	file := filepath.Join(t.TempDir(), "posts.yaml")
	writeFile(t, file, postsYAML)

	defs, err := NewLoader(nil).Load(context.Background(), []string{file})
	require.NoError(t, err)
	require.Len(t, defs.Resources, 1)

	posts := defs.Resources[0]
	assert.Equal(t, "posts", posts.Name)
	assert.Equal(t, "api", posts.Provider)
	assert.Equal(t, "title", posts.DisplayAttr)
	assert.Equal(t, map[string]any{"limit": 20}, posts.DefaultParams)
	assert.Equal(t, []string{"title", "id", "status"}, posts.Schema.Names())
	assert.Equal(t, []string{"title"}, posts.Schema.Required)
	assert.Equal(t, "Publish", posts.Actions["publish"].Label)
	assert.Equal(t, "comments", posts.Relations["comments"].Path)
	assert.Equal(t, []string{file}, defs.SourceFiles)
}

func TestLoadCUE(t *testing.T) {
	file := filepath.Join(t.TempDir(), "users.cue")
	writeFile(t, file, usersCUE)

	defs, err := NewLoader(nil).Load(context.Background(), []string{file})
	require.NoError(t, err)
	require.Len(t, defs.Resources, 1)

	users := defs.Resources[0]
	assert.Equal(t, "uid", users.Key)
	assert.Equal(t, []string{"uid", "email", "name"}, users.Schema.Names())
}

func TestLoadDirectoryMergesFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a_posts.yaml"), postsYAML)
	writeFile(t, filepath.Join(dir, "b", "users.cue"), usersCUE)
	writeFile(t, filepath.Join(dir, "c_override.json"), `{"resources": [{"name": "posts", "provider": "archive"}]}`)
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	defs, err := NewLoader(nil).Load(context.Background(), []string{dir})
	require.NoError(t, err)

	assert.Equal(t, []string{"posts", "users"}, defs.Names())
	posts, ok := defs.Lookup("posts")
	require.True(t, ok)
	assert.Equal(t, "archive", posts.Provider)
	assert.Len(t, defs.SourceFiles, 3)
}

func TestLoadReportsProblems(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		path    string
	}{
		{
			name:    "missing provider",
			file:    "a.yaml",
			content: "resources:\n  - name: posts\n",
			path:    "resources[0].provider",
		},
		{
			name:    "missing name",
			file:    "a.yaml",
			content: "resources:\n  - provider: api\n",
			path:    "resources[0].name",
		},
		{
			name:    "action without script",
			file:    "a.yaml",
			content: "resources:\n  - name: posts\n    provider: api\n    actions:\n      publish:\n        label: Publish\n",
			path:    "resources[0].actions[publish].script",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file := filepath.Join(t.TempDir(), tt.file)
			writeFile(t, file, tt.content)

			_, err := NewLoader(nil).Load(context.Background(), []string{file})
			var problems ValidationErrors
			require.ErrorAs(t, err, &problems)

			var paths []string
			for _, p := range problems {
				paths = append(paths, p.Path)
			}
			assert.Contains(t, paths, tt.path)
		})
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	yamlFile := filepath.Join(dir, "a.yaml")
	writeFile(t, yamlFile, "resources:\n  - name: posts\n    provider: api\n    lable: Posts\n")
	cueFile := filepath.Join(dir, "b.cue")
	writeFile(t, cueFile, "resources: [{name: \"posts\", provider: \"api\", lable: \"Posts\"}]\n")

	_, err := NewLoader(nil).Load(context.Background(), []string{yamlFile})
	var problems ValidationErrors
	require.ErrorAs(t, err, &problems)
	assert.Equal(t, yamlFile, problems[0].File)
	assert.Contains(t, problems[0].Message, "lable")

	_, err = NewLoader(nil).Load(context.Background(), []string{cueFile})
	require.ErrorAs(t, err, &problems)
	assert.NotEmpty(t, problems)
}

func TestLoadCUEReportsPositions(t *testing.T) {
	file := filepath.Join(t.TempDir(), "bad.cue")
	writeFile(t, file, "resources: [{\n\tname: \"posts\"\n\tprovider: 42\n}]\n")

	_, err := NewLoader(nil).Load(context.Background(), []string{file})
	var problems ValidationErrors
	require.ErrorAs(t, err, &problems)
	assert.Greater(t, problems[0].Line, 0)
}

func TestLoadMissingPath(t *testing.T) {
	_, err := NewLoader(nil).Load(context.Background(), []string{"/does/not/exist"})
	assert.Error(t, err)

	_, err = NewLoader(nil).Load(context.Background(), nil)
	assert.Error(t, err)
}

func TestParse(t *testing.T) {
	defs, err := NewLoader(nil).Parse([]byte(`{"resources": [{"name": "tags", "provider": "api"}]}`), "json")
	require.NoError(t, err)
	assert.Equal(t, []string{"tags"}, defs.Names())

	_, err = NewLoader(nil).Parse([]byte("resources: []"), "toml")
	assert.Error(t, err)
}

func TestValidationErrorString(t *testing.T) {
	e := ValidationError{File: "a.cue", Line: 3, Column: 2, Path: "resources.0.name", Message: "conflicting values"}
	assert.Equal(t, "a.cue:3:2: resources.0.name: conflicting values", e.String())
	assert.Contains(t, ValidationErrors{e}.Error(), "invalid resource definitions")
}
