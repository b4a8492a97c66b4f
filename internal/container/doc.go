// Package container persists a data structure to a single SQLite file.
//
// The file holds:
//   - meta: format version, next object ID, root group name
//   - entries: one row per container path, in DataMap order
//
// # Identity
//
// Objects reachable from more than one parent are stored once. The writer
// walks the graph depth-first in DataMap order; the first path an object is
// reached at gets the full row (attributes, shapes, payload) and every later
// path gets a link row whose link_target names the first path. The reader
// restores object IDs from the object_id column and turns link rows back
// into extra parents, so shared objects stay shared.
//
// # Read Modes
//
//   - ReadFull: payloads are loaded into memory stores
//   - ReadPreflight: the payload column is never selected and arrays get
//     placeholder stores of the right type and length
//
// # Database Configuration
//
//   - journal_mode=DELETE: the container is always one file on disk
//   - synchronous=FULL
//   - busy_timeout=5000
//   - foreign_keys=ON: link rows must point at a written path
//
// Write also regenerates a companion XDMF file describing image geometries
// for visualization tools. It is derived output and never read back.
package container
