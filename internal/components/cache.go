package components

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/georgeannie/mlops-framework/internal/logging"
)

// #region cache
// Cache publishes a component only when its document changed since the
// latest registered version.
type Cache struct {
	registry  Registry
	namespace string
	log       *slog.Logger
}

// NewCache returns a Cache over registry. An empty namespace uses
// DefaultNamespace.
func NewCache(registry Registry, namespace string) *Cache {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Cache{registry: registry, namespace: namespace, log: logging.New("components")}
}

// RegisterIfNeeded returns the reference of the component defined at path,
// publishing a new version when the document hash differs from the one
// tagged on the latest version. Publish failures wrap ErrPublish.
func (c *Cache) RegisterIfNeeded(ctx context.Context, path string) (Ref, error) {
	d, err := LoadDescriptor(path)
	if err != nil {
		return Ref{}, err
	}
	hash := d.Hash()

	versions, err := c.registry.ListVersions(ctx, d.Name)
	if err != nil {
		return Ref{}, fmt.Errorf("list versions of %s: %w", d.Name, err)
	}
	if latest, ok := Latest(versions); ok {
		tags, err := c.registry.GetTags(ctx, d.Name, latest)
		if err != nil {
			return Ref{}, fmt.Errorf("tags of %s:%s: %w", d.Name, latest, err)
		}
		if tags[HashTag] == hash {
			ref := c.ref(d.Name, latest)
			c.log.Info("component unchanged", "component", ref.String())
			return ref, nil
		}
	}

	doc, err := d.Prepare(hash)
	if err != nil {
		return Ref{}, err
	}
	version, err := c.registry.Publish(ctx, d.Name, doc)
	if err != nil {
		return Ref{}, fmt.Errorf("%w: %s: %w", ErrPublish, d.Name, err)
	}
	if version == "" {
		versions, err := c.registry.ListVersions(ctx, d.Name)
		if err != nil {
			return Ref{}, fmt.Errorf("list versions of %s after publish: %w", d.Name, err)
		}
		latest, ok := Latest(versions)
		if !ok {
			return Ref{}, fmt.Errorf("%w: %s: no version visible after publish", ErrPublish, d.Name)
		}
		version = latest
	}

	ref := c.ref(d.Name, version)
	c.log.Info("component published", "component", ref.String(), "hash", hash)
	return ref, nil
}

// RegisterAll registers every discovered component in order and returns the
// references keyed by component key. The first failure stops the run.
func (c *Cache) RegisterAll(ctx context.Context, found []Discovered) (map[string]Ref, error) {
	refs := make(map[string]Ref, len(found))
	for _, f := range found {
		ref, err := c.RegisterIfNeeded(ctx, f.Path)
		if err != nil {
			return nil, fmt.Errorf("component %s: %w", f.Key, err)
		}
		refs[f.Key] = ref
	}
	return refs, nil
}

func (c *Cache) ref(name, version string) Ref {
	return Ref{Namespace: c.namespace, Name: name, Version: version}
}

// #endregion cache
