// Package ir provides the canonical intermediate representation for the
// polyglot translation pipeline.
//
// This package contains type definitions and serialization only. All other
// internal packages import ir; ir imports nothing internal. This keeps the
// IR the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - IR trees are immutable once built; no stage mutates a parsed tree.
//   - NO float literals anywhere - the restricted grammar is integer/bool only.
//   - Every node family is a sealed tagged union (marker-method interface)
//     so consumers can type-switch exhaustively.
//   - Canonical JSON (EncodeCanonical) is the stable wire form used for
//     regression fixtures: UTF-16-sorted keys, NFC-normalized strings,
//     no floats, no null, no non-semantic metadata.
package ir
