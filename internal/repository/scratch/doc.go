// Package scratch manages the ephemeral working tree of a packaging run.
//
// A tree lives under a caller-chosen base directory in a folder named after
// the run identifier, and holds a single stage folder whose contents become
// the archive. Callers defer Remove right after Create.
package scratch
