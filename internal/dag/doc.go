// Package dag provides the directed acyclic graph built from job `needs`
// declarations. The graph is pure structure: it knows ids and edges, never
// job definitions or execution state. Node and edge enumeration follows
// insertion order so every traversal is deterministic.
package dag
