package cli

// Pull in every backend so the render registry is populated before any
// command runs.
import (
	_ "github.com/roach88/polyglot/internal/csgen"
	_ "github.com/roach88/polyglot/internal/gogen"
	_ "github.com/roach88/polyglot/internal/juliagen"
	_ "github.com/roach88/polyglot/internal/rustgen"
	_ "github.com/roach88/polyglot/internal/sqlgen"
	_ "github.com/roach88/polyglot/internal/tsgen"
)
