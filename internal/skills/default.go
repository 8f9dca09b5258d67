package skills

import (
	_ "embed"
)

//go:embed default_teams.yaml
var defaultTeams []byte

// Default returns the built-in registry. It panics if the embedded file is
// invalid, which only a broken build can cause.
func Default() *Registry {
	r, err := Parse(defaultTeams)
	if err != nil {
		panic(err)
	}
	return r
}
