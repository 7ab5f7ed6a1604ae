package mahina

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var version string

// Version is the release version of mahina.
var Version = strings.TrimSpace(version)
