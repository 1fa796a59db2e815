package components

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// #region descriptor
// Descriptor is a component definition document as read from disk.
type Descriptor struct {
	Path string // absolute path of the document
	Raw  []byte
	Name string
	doc  map[string]any
}

// LoadDescriptor reads and parses a YAML component document.
func LoadDescriptor(path string) (*Descriptor, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read descriptor: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDescriptor, path, err)
	}
	name, _ := doc["name"].(string)
	if name == "" {
		return nil, fmt.Errorf("%w: %s: missing name", ErrInvalidDescriptor, path)
	}
	return &Descriptor{Path: abs, Raw: raw, Name: name, doc: doc}, nil
}

// Hash is the hex sha256 of the raw document bytes.
func (d *Descriptor) Hash() string {
	return Hash(d.Raw)
}

// Hash returns the hex sha256 digest of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Prepare returns the document ready for publishing: relative code and
// environment.conda_file paths are anchored to the descriptor's directory,
// base_path is set to that directory, tags.hash carries hash and any
// explicit version is dropped so the registry assigns the next one.
func (d *Descriptor) Prepare(hash string) ([]byte, error) {
	dir := filepath.Dir(d.Path)
	out := make(map[string]any, len(d.doc)+1)
	for k, v := range d.doc {
		out[k] = v
	}
	delete(out, "version")
	out["base_path"] = dir

	if code, ok := out["code"].(string); ok {
		out["code"] = anchor(dir, code)
	}
	if env, ok := out["environment"].(map[string]any); ok {
		envCopy := make(map[string]any, len(env))
		for k, v := range env {
			envCopy[k] = v
		}
		if conda, ok := envCopy["conda_file"].(string); ok {
			envCopy["conda_file"] = anchor(dir, conda)
		}
		out["environment"] = envCopy
	}

	tags := map[string]any{}
	if existing, ok := out["tags"].(map[string]any); ok {
		for k, v := range existing {
			tags[k] = v
		}
	}
	tags[HashTag] = hash
	out["tags"] = tags

	data, err := yaml.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal descriptor %s: %w", d.Name, err)
	}
	return data, nil
}

// anchor joins a relative local path onto dir. Absolute paths, URIs and
// registry references pass through.
func anchor(dir, p string) string {
	if p == "" || filepath.IsAbs(p) || isReference(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// isReference reports whether p is a URI or a registry reference such as
// azureml:env:1 rather than a local path.
func isReference(p string) bool {
	if strings.Contains(p, "://") {
		return true
	}
	return strings.Contains(p, ":") && !isWindowsDrive(p)
}

func isWindowsDrive(p string) bool {
	return len(p) >= 2 && p[1] == ':' && (p[0]|0x20) >= 'a' && (p[0]|0x20) <= 'z'
}

// #endregion descriptor

// #region discovery
// Excluded descriptor names: the pipeline template and its rendered output.
var excludedDescriptors = map[string]bool{
	"pipeline_job_template.yaml": true,
	"pipeline_job.yaml":          true,
}

// DescriptorPattern matches component documents inside a jobs directory.
const DescriptorPattern = "*_job.yaml"

// Discover returns component documents under dir matching pattern, keyed by
// component key (file stem without the _job suffix), in key order.
func Discover(dir, pattern string) ([]Discovered, error) {
	if pattern == "" {
		pattern = DescriptorPattern
	}
	matches, err := doublestar.Glob(os.DirFS(dir), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %s in %s: %w", pattern, dir, err)
	}
	var found []Discovered
	for _, m := range matches {
		base := filepath.Base(m)
		if excludedDescriptors[base] {
			continue
		}
		found = append(found, Discovered{
			Key:  strings.TrimSuffix(strings.TrimSuffix(base, filepath.Ext(base)), "_job"),
			Path: filepath.Join(dir, filepath.FromSlash(m)),
		})
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoDescriptors, dir)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Key < found[j].Key })
	return found, nil
}

// Discovered is one component document found on disk.
type Discovered struct {
	Key  string
	Path string
}

// #endregion discovery
