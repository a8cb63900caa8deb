// Package tools defines the capability catalog: every tool the rig can
// expose, each with one or more versions. The harness registers tools from
// this catalog according to the live configuration; the catalog itself is
// immutable after construction.
package tools

import (
	"github.com/Typewise/mcp-chaos-rig/internal/config"
	"github.com/Typewise/mcp-chaos-rig/internal/contacts"

	"github.com/mark3labs/mcp-go/server"
)

// Version is one concrete rendition of a capability: the tool definition
// advertised to clients and the handler behind it. Versions of the same
// capability share a name but differ in description and behavior.
type Version struct {
	Tag        string
	ServerTool server.ServerTool
}

// Capability is a named, versionable tool. Most capabilities declare a
// single version; the ones that declare more can be re-versioned at runtime
// through the control API.
type Capability struct {
	Name           string
	DefaultVersion string
	Versions       []Version
}

// Version returns the rendition with the given tag.
func (c Capability) Version(tag string) (Version, bool) {
	for _, v := range c.Versions {
		if v.Tag == tag {
			return v, true
		}
	}
	return Version{}, false
}

// VersionTags lists the declared version tags in declaration order.
func (c Capability) VersionTags() []string {
	tags := make([]string, len(c.Versions))
	for i, v := range c.Versions {
		tags[i] = v.Tag
	}
	return tags
}

// Catalog is the ordered set of capabilities the rig ships.
type Catalog struct {
	caps []Capability
}

// NewCatalog builds the full catalog: the built-in toys plus the CRUD tools
// over the contact store.
func NewCatalog(store *contacts.Store) *Catalog {
	c := &Catalog{}
	c.caps = append(c.caps, builtinCapabilities()...)
	c.caps = append(c.caps, contactCapabilities(store)...)
	return c
}

// Capabilities returns the catalog in declaration order.
func (c *Catalog) Capabilities() []Capability {
	return c.caps
}

// Lookup finds a capability by name.
func (c *Catalog) Lookup(name string) (Capability, bool) {
	for _, cap := range c.caps {
		if cap.Name == name {
			return cap, true
		}
	}
	return Capability{}, false
}

// Declare registers every capability with the configuration store so that
// control-plane tool setters have a ground truth to validate against.
func (c *Catalog) Declare(store *config.Store) {
	for _, cap := range c.caps {
		store.DeclareTool(cap.Name, cap.VersionTags(), cap.DefaultVersion)
	}
}
