// Package render defines the backend contract and the single entry
// point that turns an IR tree into generated source for one target.
//
// Backends register themselves in an init-time table, database/sql
// driver style. Render dispatches through the table, runs strategy
// selection against the backend's capabilities, and applies the
// two-tier fallback: a failure while rendering a Broadcast or
// ParallelPartitioned form retries the sequential Loops form before
// anything becomes fatal.
package render

import (
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/polyglot/internal/ir"
	"github.com/roach88/polyglot/internal/strategy"
	"github.com/roach88/polyglot/internal/typeinfo"
)

// Dialect selects the SQL variant for the query backend. Other
// backends ignore it.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// ParseDialect validates a dialect string. Empty selects sqlite.
func ParseDialect(s string) (Dialect, error) {
	switch Dialect(s) {
	case "":
		return DialectSQLite, nil
	case DialectSQLite, DialectPostgres:
		return Dialect(s), nil
	default:
		return "", fmt.Errorf("unknown dialect %q (want sqlite or postgres)", s)
	}
}

// Request carries every caller-supplied knob for one render call.
// There is no ambient configuration anywhere else.
type Request struct {
	FuncName    string        // name of the generated function; empty means "compute"
	Mode        strategy.Mode // empty means auto
	Parallel    bool
	Unsafe      bool    // hot-loop hints only, where the target has them
	IntWidth    int     // 32 or 64; zero means 64
	Dialect     Dialect // query backend only
	StrictTypes bool
}

// Artifact is the terminal output of one render call.
type Artifact struct {
	Code     string
	Notes    []string
	Degraded bool
	Warnings []string
}

// Backend generates source for one target ecosystem. Implementations
// never mutate their inputs and are deterministic for identical inputs.
type Backend interface {
	Name() string
	Capabilities() strategy.Capabilities
	Render(n ir.Node, info *typeinfo.Info, dec strategy.Decision, req Request) (*Artifact, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Backend{}
)

// Register adds a backend to the dispatch table. Panics on a duplicate
// name; registration happens once, from package init functions.
func Register(b Backend) {
	registryMu.Lock()
	defer registryMu.Unlock()
	name := b.Name()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("render: duplicate backend %q", name))
	}
	registry[name] = b
}

// Lookup returns the backend registered under name.
func Lookup(name string) (Backend, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	b, ok := registry[name]
	return b, ok
}

// Targets returns the registered backend names, sorted.
func Targets() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (req Request) normalize() Request {
	if req.FuncName == "" {
		req.FuncName = "compute"
	}
	if req.Mode == "" {
		req.Mode = strategy.ModeAuto
	}
	if req.IntWidth == 0 {
		req.IntWidth = 64
	}
	return req
}

// Render generates source for target. Strategy selection, note
// propagation, and the loops retry all happen here so backends only
// implement emission.
func Render(target string, n ir.Node, info *typeinfo.Info, req Request) (*Artifact, error) {
	b, ok := Lookup(target)
	if !ok {
		return nil, fmt.Errorf("unknown target %q (have %v)", target, Targets())
	}
	req = req.normalize()

	dec := strategy.Select(n, req.Mode, req.Parallel, b.Capabilities())

	art, err := b.Render(n, info, dec, req)
	if err == nil {
		return finish(art, dec, info), nil
	}
	if dec.Strategy == strategy.Loops {
		return nil, err
	}

	// Two-tier fallback: retry the sequential form before going fatal.
	fallback := strategy.Decision{
		Strategy: strategy.Loops,
		Degraded: true,
		Notes: append(append([]string{}, dec.Notes...),
			fmt.Sprintf("render fallback -> loops: %v", err)),
	}
	art, err = b.Render(n, info, fallback, req)
	if err != nil {
		return nil, err
	}
	return finish(art, fallback, info), nil
}

// finish merges decision notes and inference warnings into the
// artifact so the output is self-documenting about what actually ran.
func finish(art *Artifact, dec strategy.Decision, info *typeinfo.Info) *Artifact {
	merged := make([]string, 0, len(dec.Notes)+len(art.Notes))
	merged = append(merged, dec.Notes...)
	merged = append(merged, art.Notes...)
	art.Notes = merged
	art.Degraded = art.Degraded || dec.Degraded
	if info != nil {
		art.Warnings = append(append([]string{}, info.Warnings...), art.Warnings...)
	}
	return art
}
