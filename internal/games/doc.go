// Package games holds the catalog of game descriptors a server's game key
// resolves to.
//
// A descriptor names the container image, the container ports it
// publishes, default environment, the in-container data path, and the
// adapter kind. Catalog games publish a fixed port list. The custom
// adapter runs an operator-supplied startup script mounted read-only and
// publishes a single port.
//
// Built-in descriptors can be overridden, or new ones added, through
// [[games]] tables in the host config.
package games
