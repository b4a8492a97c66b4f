// Package data implements the hierarchical, identifier-addressed data store
// that pipelines thread through their filters.
//
// A Structure is an arena of objects keyed by a stable integer ID. Containers
// (groups, attribute matrices, geometries) hold ordered DataMaps of child IDs;
// objects hold the IDs of every container that lists them. An object may be
// listed by more than one container, so the store is a graph, not a tree.
// Ownership belongs to the Structure: an object is dropped only when its last
// parent edge is removed.
//
// # Invariants
//
//   - Every reachable object's ID is in the reverse index exactly once.
//   - Every parent ID recorded on an object names a container whose DataMap
//     lists that object.
//   - Mutations validate first and then edit the DataMap and the index
//     together; a failed call leaves the Structure unchanged.
//
// Objects are addressed by Path (a name sequence) between pipeline runs,
// because IDs are only stable within one lineage of clones.
package data
