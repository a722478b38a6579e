// Package ctleaf decodes the MerkleTreeLeaf and extra_data framing returned
// by a CT log's get-entries endpoint into raw DER certificate bytes.
package ctleaf

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// EntryType mirrors the CT LogEntryType wire value from RFC 6962 §3.4.
type EntryType uint16

const (
	EntryTypeX509LogEntry    EntryType = 0
	EntryTypePrecertLogEntry EntryType = 1
)

var errShortBuffer = errors.New("ctleaf: buffer too short")

// cursor walks a byte slice left to right, consuming big-endian
// length-prefixed fields without ever slicing past the end.
type cursor struct {
	buf []byte
	pos int
}

func (c *cursor) remaining() int {
	return len(c.buf) - c.pos
}

func (c *cursor) skip(n int) error {
	if c.remaining() < n {
		return errShortBuffer
	}
	c.pos += n
	return nil
}

func (c *cursor) readUint(n int) (uint64, error) {
	if c.remaining() < n {
		return 0, errShortBuffer
	}
	var v uint64
	for i := 0; i < n; i++ {
		v = v<<8 | uint64(c.buf[c.pos+i])
	}
	c.pos += n
	return v, nil
}

// readBytes reads a length, itself encoded big-endian in lenSize bytes,
// followed by that many payload bytes.
func (c *cursor) readBytes(lenSize int) ([]byte, error) {
	n, err := c.readUint(lenSize)
	if err != nil {
		return nil, err
	}
	if c.remaining() < int(n) {
		return nil, errShortBuffer
	}
	b := c.buf[c.pos : c.pos+int(n)]
	c.pos += int(n)
	return b, nil
}

// Leaf is the decoded result of one get-entries row: the leaf certificate
// (or, for a precert entry, the precertificate taken from extra_data) plus
// the submitted chain, all still DER-encoded.
type Leaf struct {
	Type  EntryType
	Cert  []byte
	Chain [][]byte
}

// DecodeEntry decodes one base64 leaf_input/extra_data pair as returned by
// GET ct/v1/get-entries. Unknown entry types are reported as an error: the
// spec treats them as a parse error to be logged and skipped by the caller.
func DecodeEntry(leafInputB64, extraDataB64 string) (Leaf, error) {
	leafBytes, err := base64.StdEncoding.DecodeString(leafInputB64)
	if err != nil {
		return Leaf{}, fmt.Errorf("ctleaf: decode leaf_input: %w", err)
	}
	extraBytes, err := base64.StdEncoding.DecodeString(extraDataB64)
	if err != nil {
		return Leaf{}, fmt.Errorf("ctleaf: decode extra_data: %w", err)
	}
	return decode(leafBytes, extraBytes)
}

func decode(leafBytes, extraBytes []byte) (Leaf, error) {
	lc := &cursor{buf: leafBytes}

	// MerkleTreeLeaf: version(1) + leaf_type(1) + timestamp(8) + entry_type(2)
	if err := lc.skip(1); err != nil {
		return Leaf{}, fmt.Errorf("ctleaf: version: %w", err)
	}
	if err := lc.skip(1); err != nil {
		return Leaf{}, fmt.Errorf("ctleaf: leaf_type: %w", err)
	}
	if err := lc.skip(8); err != nil {
		return Leaf{}, fmt.Errorf("ctleaf: timestamp: %w", err)
	}
	entryTypeVal, err := lc.readUint(2)
	if err != nil {
		return Leaf{}, fmt.Errorf("ctleaf: entry_type: %w", err)
	}
	entryType := EntryType(entryTypeVal)

	ec := &cursor{buf: extraBytes}

	switch entryType {
	case EntryTypeX509LogEntry:
		certBytes, err := lc.readBytes(3)
		if err != nil {
			return Leaf{}, fmt.Errorf("ctleaf: x509 cert: %w", err)
		}
		chain, err := readCertChain(ec)
		if err != nil {
			return Leaf{}, fmt.Errorf("ctleaf: x509 chain: %w", err)
		}
		return Leaf{Type: entryType, Cert: certBytes, Chain: chain}, nil

	case EntryTypePrecertLogEntry:
		// The leaf carries issuer_key_hash(32) + tbs_certificate, neither of
		// which is DER we can hand to an X.509 parser; the precertificate's
		// own DER lives at the front of extra_data (PrecertChainEntry).
		precertBytes, err := ec.readBytes(3)
		if err != nil {
			return Leaf{}, fmt.Errorf("ctleaf: precert: %w", err)
		}
		chain, err := readCertChain(ec)
		if err != nil {
			return Leaf{}, fmt.Errorf("ctleaf: precert chain: %w", err)
		}
		return Leaf{Type: entryType, Cert: precertBytes, Chain: chain}, nil

	default:
		return Leaf{}, fmt.Errorf("ctleaf: unknown entry type %d", entryTypeVal)
	}
}

// readCertChain reads back-to-back individually length-prefixed DER
// certificates directly off c until the buffer is exhausted. There is no
// enclosing vector length: extra_data ends exactly where the chain ends.
// Parsing is best-effort: a length that would overrun the buffer stops the
// walk and the certificates read so far are returned.
func readCertChain(c *cursor) ([][]byte, error) {
	var chain [][]byte
	for c.remaining() > 0 {
		cert, err := c.readBytes(3)
		if err != nil {
			return chain, nil
		}
		if len(cert) > 0 {
			chain = append(chain, cert)
		}
	}
	return chain, nil
}
