// Package serialization implements the versioned snapshot envelope used to
// persist a suspended automa and restore it later, possibly in a different
// process.
package serialization

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Version is the current snapshot format version. It is recorded in every
// snapshot and checked on load; a mismatch is rejected rather than decoded
// on a best-effort basis.
const Version = "1.0"

// Snapshot is an opaque, durable capture of a suspended run. The payload is
// a msgpack document; callers treat the bytes as a unit and persist them
// wherever convenient.
type Snapshot struct {
	SerializedBytes      []byte `msgpack:"serialized_bytes"`
	SerializationVersion string `msgpack:"serialization_version"`
}

// VersionError reports a snapshot whose format version does not match the
// version this build understands.
type VersionError struct {
	Found    string
	Expected string
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("snapshot version %q is not supported, expected %q", e.Found, e.Expected)
}

// Dump encodes state into a snapshot stamped with the current version.
func Dump(state any) (*Snapshot, error) {
	payload, err := msgpack.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot payload: %w", err)
	}
	return &Snapshot{SerializedBytes: payload, SerializationVersion: Version}, nil
}

// Load verifies the snapshot version and decodes its payload into state.
func Load(snap *Snapshot, state any) error {
	if snap.SerializationVersion != Version {
		return &VersionError{Found: snap.SerializationVersion, Expected: Version}
	}
	if err := msgpack.Unmarshal(snap.SerializedBytes, state); err != nil {
		return fmt.Errorf("decoding snapshot payload: %w", err)
	}
	return nil
}

// Marshal encodes the snapshot itself for storage.
func Marshal(snap *Snapshot) ([]byte, error) {
	data, err := msgpack.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a stored snapshot previously produced by Marshal.
func Unmarshal(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &snap, nil
}
