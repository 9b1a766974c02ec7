// Package state holds the room registry shared by every view.
//
// # Overview
//
// Registry is the client-side source of truth: an ordered collection of rooms
// with unique ids. The sync engine is its only writer; views read copies.
//
//	Writer (sync engine loop):         Readers (views):
//	┌──────────────────────┐          ┌──────────────────────┐
//	│ ReplaceAll(list)     │          │ Subscribe()          │
//	│ PatchStatus(id, s)   │─────────→│ Snapshot()           │
//	│ RecordFailure(err)   │ (mutex)  │ render projections   │
//	└──────────────────────┘          └──────────────────────┘
//
// # Mutation Semantics
//
//   - ReplaceAll swaps the whole collection in one step. Order is taken from
//     the given list. Invalid input (missing id, undefined status, repeated
//     id) is rejected and nothing changes.
//   - PatchStatus changes one room's status in place. Position and the other
//     fields are untouched. An unknown id is a no-op that returns false.
//     Re-applying the value a room already has is not a change.
//   - RecordFailure keeps the rooms and records the error. A later successful
//     ReplaceAll clears it.
//
// Readers observe either the state before or after a mutation, never a mix.
//
// # Snapshots
//
// Snapshot and Rooms return copies; callers cannot change ids or order of the
// stored collection. A Snapshot carries a Version that increases on every
// change, so views can skip re-rendering identical data.
//
// # Change Signals
//
// Subscribe hands out a buffered channel per observer. Signals coalesce and
// are sent without blocking, so a stalled view never holds up the writer.
package state
