// Package audit implements the append-only audit trail for transfer requests.
//
// Every transfer owns its own hash chain. The first record of a chain links to
// GenesisHash (64 hex zeros) and each later record stores the SHA-256 of its
// predecessor, so editing or deleting a record is detectable via Verify.
// Replaying a chain with Replay reconstructs the transfer's posting status.
//
// Two implementations of the Recorder interface are provided:
//   - MemoryRecorder: in-process, for testing and development.
//   - PostgresRecorder: durable, for production use.
package audit
