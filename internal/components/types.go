package components

import (
	"context"
	"errors"
	"fmt"
)

// DefaultNamespace prefixes component identifiers handed to the remote
// pipeline definition.
const DefaultNamespace = "azureml"

// HashTag is the descriptor tag holding the content hash.
const HashTag = "hash"

// #region errors
var (
	// ErrPublish wraps any failure to publish a new component version.
	ErrPublish = errors.New("component publish failed")
	// ErrInvalidDescriptor marks a descriptor that cannot be parsed or lacks a name.
	ErrInvalidDescriptor = errors.New("invalid component descriptor")
	// ErrNoDescriptors is returned when discovery finds nothing to register.
	ErrNoDescriptors = errors.New("no component descriptors found")
)

// #endregion errors

// #region ref
// Ref identifies one published component version.
type Ref struct {
	Namespace string
	Name      string
	Version   string
}

// String renders the reference as <namespace>:<name>:<version>.
func (r Ref) String() string {
	return fmt.Sprintf("%s:%s:%s", r.Namespace, r.Name, r.Version)
}

// #endregion ref

// #region registry
// Registry is the remote store of versioned components.
type Registry interface {
	// ListVersions returns every version of name. Unknown names return an
	// empty list, not an error.
	ListVersions(ctx context.Context, name string) ([]string, error)
	// GetTags returns the tags recorded on one version.
	GetTags(ctx context.Context, name, version string) (map[string]string, error)
	// Publish stores a prepared descriptor as a new version of name and
	// returns the assigned version. An empty version means the registry
	// did not report one and the caller should list versions again.
	Publish(ctx context.Context, name string, document []byte) (string, error)
}

// #endregion registry
