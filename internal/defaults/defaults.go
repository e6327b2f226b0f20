// Package defaults provides the embedded starter configuration written
// by the wren init subcommand.
package defaults

import _ "embed"

// ConfigYAML is the annotated example configuration.
//
//go:embed config.example.yaml
var ConfigYAML []byte
