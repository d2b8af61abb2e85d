// Package store provides SQLite-backed recording of simulator sessions.
//
// A session is the configuration a simulator was created with plus the
// ordered control inputs applied to it:
//   - Sessions: config and version stamps, keyed by a UUIDv7 session ID
//   - Inputs: load, throttle, ignition, starter, advance and render calls
//   - Snapshots: stats published after selected inputs
//
// The simulation is deterministic, so replaying a session's inputs into a
// fresh simulator must reproduce every recorded snapshot exactly. Replay
// reports the first divergence.
//
// # Ordering
//
// Every record carries seq, a per-session logical clock. Queries order by
// seq, never by wall time, so results are identical across replays.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
