// Package memory contains implementations of core.MemoryStore, the long-term
// user memory the runner feeds after a completed turn. Depend on
// core.MemoryStore and pick an implementation at wiring time; memory/sqlite
// provides a persistent one.
package memory
