package swapdb

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"

	"github.com/btcsuite/btcd/wire"
)

// All duration and timestamp math in this repository uses a single unit,
// nanoseconds, which is also the unit every timestamp is persisted in.

// writeTime serializes a timestamp as nanoseconds since the unix epoch. The
// zero time round-trips as zero nanoseconds, which lets optional timestamps
// such as the exclusive timelock be stored without a presence flag.
func writeTime(b *bytes.Buffer, t time.Time) error {
	var unixNano int64
	if !t.IsZero() {
		unixNano = t.UnixNano()
	}

	return binary.Write(b, byteOrder, unixNano)
}

// readTime deserializes a timestamp written by writeTime.
func readTime(r io.Reader) (time.Time, error) {
	var unixNano int64
	if err := binary.Read(r, byteOrder, &unixNano); err != nil {
		return time.Time{}, err
	}

	if unixNano == 0 {
		return time.Time{}, nil
	}

	return time.Unix(0, unixNano), nil
}

// writeString serializes a variable length string.
func writeString(b *bytes.Buffer, s string) error {
	return wire.WriteVarString(b, 0, s)
}

// readString deserializes a string written by writeString.
func readString(r io.Reader) (string, error) {
	return wire.ReadVarString(r, 0)
}
