// Package version stamps the server build version reported over the wire
// (healthz, session:granted) the same way morlock stamps its engines.
package version

import "github.com/seekerror/build"

// Server is this binary's version, bumped by hand the way morlock bumps
// pkg/engine/engine.go's own version var.
var Server = build.NewVersion(0, 1, 0)
