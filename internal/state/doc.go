// Package state manages host-side run records.
//
// After each mirror pass the host writes a small JSON record for the unit
// describing the outcome. Records live under the host state directory,
// never under the destination base, so the engine's destination tree stays
// an exact mirror of the source.
//
// Key concepts:
//   - UnitRecord: The last pass outcome for one unit
//   - RecordStore: Interface for persisting and loading records
package state
