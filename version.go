package routeflow

import _ "embed"

// Version is the release of the routeflow module.
//
//go:embed VERSION
var Version string
