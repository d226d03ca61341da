// Package policies embeds the Rego policies evaluated by the embedded
// decider.
package policies

import "embed"

//go:embed authz.rego
var FS embed.FS
