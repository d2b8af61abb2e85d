// Package ir provides the shared value types of the engine simulator:
// the compiled engine Topology, the StatsSnapshot read-back record and
// the AcousticEvent passed from the fluid model to the acoustic mapper.
//
// It also holds the recorded-session records (Session, Input,
// SnapshotRecord) shared by the store and the CLI. ir imports only config.
//
// Key design constraints:
//   - Topologies are immutable once compiled; Clone before handing one out
//   - Snapshots are plain values and never alias simulator memory
//   - Hashes use SHA-256 with domain separation over NFC-normalized input
package ir
