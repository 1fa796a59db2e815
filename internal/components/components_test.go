package components

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/georgeannie/mlops-framework/internal/cloudcli"
	"github.com/georgeannie/mlops-framework/internal/tracking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const trainDescriptor = `name: train_model
version: 7
code: ../src
environment:
  image: python:3.11
  conda_file: env/conda.yaml
command: python train.py --config ${{inputs.config_path}}
tags:
  owner: ml
`

// memRegistry is an in-memory Registry counting publishes.
type memRegistry struct {
	mu        sync.Mutex
	versions  map[string][]string
	tags      map[string]map[string]string
	docs      map[string][]byte
	publishes int
	failWith  error
}

func newMemRegistry() *memRegistry {
	return &memRegistry{
		versions: map[string][]string{},
		tags:     map[string]map[string]string{},
		docs:     map[string][]byte{},
	}
}

func (m *memRegistry) ListVersions(_ context.Context, name string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.versions[name]...), nil
}

func (m *memRegistry) GetTags(_ context.Context, name, version string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tags[name+":"+version], nil
}

func (m *memRegistry) Publish(_ context.Context, name string, doc []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishes++
	if m.failWith != nil {
		return "", m.failWith
	}
	tags, err := documentTags(doc)
	if err != nil {
		return "", err
	}
	v := NextVersion(m.versions[name])
	m.versions[name] = append(m.versions[name], v)
	m.tags[name+":"+v] = tags
	m.docs[name+":"+v] = doc
	return v, nil
}

func writeDescriptor(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCompareVersions(t *testing.T) {
	assert.Equal(t, 1, CompareVersions("10", "9"))
	assert.Equal(t, -1, CompareVersions("1.2", "1.10"))
	assert.Equal(t, 0, CompareVersions("2.0", "2.0"))
	assert.Equal(t, -1, CompareVersions("1", "1.0"))
	assert.Equal(t, -1, CompareVersions("1.9", "1.beta"))
	assert.Equal(t, -1, CompareVersions("1.alpha", "1.beta"))
}

func TestLatestAvoidsLexicalTrap(t *testing.T) {
	v, ok := Latest([]string{"2", "10", "1"})
	require.True(t, ok)
	assert.Equal(t, "10", v)

	_, ok = Latest(nil)
	assert.False(t, ok)
}

func TestNextVersion(t *testing.T) {
	assert.Equal(t, "1", NextVersion(nil))
	assert.Equal(t, "11", NextVersion([]string{"2", "10", "dev"}))
}

func TestPrepareAnchorsRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := writeDescriptor(t, dir, "jobs/train_job.yaml", trainDescriptor)
	d, err := LoadDescriptor(path)
	require.NoError(t, err)
	assert.Equal(t, "train_model", d.Name)

	out, err := d.Prepare("abc")
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(out, &doc))

	jobsDir := filepath.Join(dir, "jobs")
	assert.Equal(t, jobsDir, doc["base_path"])
	assert.Equal(t, filepath.Join(dir, "src"), doc["code"])
	env := doc["environment"].(map[string]any)
	assert.Equal(t, filepath.Join(jobsDir, "env", "conda.yaml"), env["conda_file"])
	assert.Equal(t, "python:3.11", env["image"])
	tags := doc["tags"].(map[string]any)
	assert.Equal(t, "abc", tags["hash"])
	assert.Equal(t, "ml", tags["owner"])
	assert.NotContains(t, doc, "version")
	assert.Equal(t, "python train.py --config ${{inputs.config_path}}", doc["command"])
}

func TestPrepareKeepsReferences(t *testing.T) {
	path := writeDescriptor(t, t.TempDir(), "score_job.yaml",
		"name: score\ncode: azureml:score-src:3\nenvironment: azureml:sklearn-env:1\n")
	d, err := LoadDescriptor(path)
	require.NoError(t, err)
	out, err := d.Prepare("h")
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(out, &doc))
	assert.Equal(t, "azureml:score-src:3", doc["code"])
	assert.Equal(t, "azureml:sklearn-env:1", doc["environment"])
}

func TestLoadDescriptorRequiresName(t *testing.T) {
	path := writeDescriptor(t, t.TempDir(), "x_job.yaml", "code: .\n")
	_, err := LoadDescriptor(path)
	assert.ErrorIs(t, err, ErrInvalidDescriptor)
}

func TestCacheSkipsUnchangedDescriptor(t *testing.T) {
	ctx := context.Background()
	reg := newMemRegistry()
	cache := NewCache(reg, "")
	path := writeDescriptor(t, t.TempDir(), "train_job.yaml", trainDescriptor)

	first, err := cache.RegisterIfNeeded(ctx, path)
	require.NoError(t, err)
	second, err := cache.RegisterIfNeeded(ctx, path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "azureml:train_model:1", second.String())
	assert.Equal(t, 1, reg.publishes)
}

func TestCachePublishesOnChange(t *testing.T) {
	ctx := context.Background()
	reg := newMemRegistry()
	cache := NewCache(reg, "azureml")
	dir := t.TempDir()
	path := writeDescriptor(t, dir, "train_job.yaml", trainDescriptor)

	first, err := cache.RegisterIfNeeded(ctx, path)
	require.NoError(t, err)
	writeDescriptor(t, dir, "train_job.yaml", trainDescriptor+" ")
	second, err := cache.RegisterIfNeeded(ctx, path)
	require.NoError(t, err)

	assert.Equal(t, 1, CompareVersions(second.Version, first.Version))
	assert.Equal(t, 2, reg.publishes)
}

func TestCacheComparesAgainstNumericallyLatest(t *testing.T) {
	ctx := context.Background()
	path := writeDescriptor(t, t.TempDir(), "train_job.yaml", trainDescriptor)
	d, err := LoadDescriptor(path)
	require.NoError(t, err)

	reg := newMemRegistry()
	reg.versions["train_model"] = []string{"2", "10", "1"}
	reg.tags["train_model:2"] = map[string]string{"hash": "stale"}
	reg.tags["train_model:10"] = map[string]string{"hash": d.Hash()}

	ref, err := NewCache(reg, "").RegisterIfNeeded(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "10", ref.Version)
	assert.Zero(t, reg.publishes)
}

func TestCachePublishFailureIsFatal(t *testing.T) {
	reg := newMemRegistry()
	boom := errors.New("workspace unreachable")
	reg.failWith = boom
	path := writeDescriptor(t, t.TempDir(), "train_job.yaml", trainDescriptor)

	_, err := NewCache(reg, "").RegisterIfNeeded(context.Background(), path)
	assert.ErrorIs(t, err, ErrPublish)
	assert.ErrorIs(t, err, boom)
}

func TestDiscoverSkipsTemplates(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "train_job.yaml", trainDescriptor)
	writeDescriptor(t, dir, "validate_job.yaml", "name: validate\n")
	writeDescriptor(t, dir, "pipeline_job_template.yaml", "jobs: {}\n")
	writeDescriptor(t, dir, "pipeline_job.yaml", "jobs: {}\n")
	writeDescriptor(t, dir, "notes.txt", "")

	found, err := Discover(dir, "")
	require.NoError(t, err)
	var keys []string
	for _, f := range found {
		keys = append(keys, f.Key)
	}
	assert.Equal(t, []string{"train", "validate"}, keys)

	_, err = Discover(t.TempDir(), "")
	assert.ErrorIs(t, err, ErrNoDescriptors)
}

func TestRegisterAll(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "train_job.yaml", trainDescriptor)
	writeDescriptor(t, dir, "register_job.yaml", "name: register_model\n")
	found, err := Discover(dir, "")
	require.NoError(t, err)

	refs, err := NewCache(newMemRegistry(), "").RegisterAll(context.Background(), found)
	require.NoError(t, err)
	assert.Equal(t, "azureml:train_model:1", refs["train"].String())
	assert.Equal(t, "azureml:register_model:1", refs["register"].String())
}

func TestSQLRegistry(t *testing.T) {
	ctx := context.Background()
	db, err := tracking.OpenDB(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	reg, err := NewSQLRegistry(db)
	require.NoError(t, err)

	versions, err := reg.ListVersions(ctx, "train_model")
	require.NoError(t, err)
	assert.Empty(t, versions)

	path := writeDescriptor(t, t.TempDir(), "train_job.yaml", trainDescriptor)
	cache := NewCache(reg, "")
	for i := 0; i < 11; i++ {
		writeDescriptor(t, filepath.Dir(path), "train_job.yaml", trainDescriptor+strings.Repeat("#", i)+"\n")
		_, err := cache.RegisterIfNeeded(ctx, path)
		require.NoError(t, err)
	}
	versions, err = reg.ListVersions(ctx, "train_model")
	require.NoError(t, err)
	assert.Len(t, versions, 11)
	assert.Equal(t, "11", versions[len(versions)-1])

	ref, err := cache.RegisterIfNeeded(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "11", ref.Version)

	tags, err := reg.GetTags(ctx, "train_model", "11")
	require.NoError(t, err)
	assert.Equal(t, "ml", tags["owner"])
	assert.Len(t, tags["hash"], 64)

	doc, err := reg.Document(ctx, "train_model", "11")
	require.NoError(t, err)
	assert.Contains(t, string(doc), "base_path")
}

func TestAzureCLIRegistry(t *testing.T) {
	ctx := context.Background()
	script := (&cloudcli.Script{}).
		On("az ml component list --name train_model", "1\n2\n10\n", nil).
		On("az ml component show --name train_model --version 10", `{"hash":"old"}`, nil).
		On("az ml component create --file", "11\n", nil)
	reg := &AzureCLIRegistry{Runner: script, ResourceGroup: "rg", Workspace: "ws"}

	path := writeDescriptor(t, t.TempDir(), "train_job.yaml", trainDescriptor)
	ref, err := NewCache(reg, "").RegisterIfNeeded(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "azureml:train_model:11", ref.String())

	calls := script.Calls()
	require.Len(t, calls, 3)
	assert.Contains(t, calls[0].Line(), "--resource-group rg --workspace-name ws")
	assert.Equal(t, 1, script.Count("az ml component create"))
}
