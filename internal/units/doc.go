// Package units contains test logic written in Go. Each unit registers
// itself with the harness under the name of its manifest file, so the
// package only needs to be imported for its side effects.
package units
