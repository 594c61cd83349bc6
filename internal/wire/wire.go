// Package wire implements the small set of raw byte-level operations the
// forwarder needs to perform directly on a DNS datagram, without parsing
// the message into a structured form. Everything here reads or mutates
// the caller's buffer in place and never reinterprets bytes it doesn't
// need to touch.
package wire

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// ErrTruncated is returned when a buffer ends before a length-prefixed
// label or the fixed header fields can be fully read.
var ErrTruncated = errors.New("wire: buffer truncated")

// HeaderSize is the fixed length of a DNS message header (RFC 1035 §4.1.1).
const HeaderSize = 12

// questionOffset is where the question section begins: right after the
// 12-byte header.
const questionOffset = HeaderSize

// maxLabels bounds the number of labels walked per name, guarding against
// a buffer crafted to loop (this extractor does not follow compression
// pointers, so a loop can only arise from repeated zero-length reads,
// which the terminator check already prevents — the bound is a cheap
// second line of defense against a future change forgetting it).
const maxLabels = 128

// ReadTransactionID returns the 16-bit transaction ID at octets 0-1 of msg.
func ReadTransactionID(msg []byte) (uint16, error) {
	if len(msg) < 2 {
		return 0, ErrTruncated
	}
	return binary.BigEndian.Uint16(msg[0:2]), nil
}

// WriteTransactionID overwrites the 16-bit transaction ID at octets 0-1
// of msg in place. The rest of msg is left untouched.
func WriteTransactionID(msg []byte, id uint16) error {
	if len(msg) < 2 {
		return ErrTruncated
	}
	binary.BigEndian.PutUint16(msg[0:2], id)
	return nil
}

// ExtractQuestionName walks the question section's QNAME starting at
// octet 12: a sequence of length-prefixed labels terminated by a
// zero-length label. It returns the name lower-cased and dot-joined.
// It never reads past len(msg); a malformed or truncated buffer yields
// an error rather than a panic.
func ExtractQuestionName(msg []byte) (string, error) {
	if len(msg) < questionOffset+1 {
		return "", ErrTruncated
	}

	var labels []string
	off := questionOffset
	for range maxLabels {
		if off >= len(msg) {
			return "", ErrTruncated
		}
		n := int(msg[off])
		off++
		if n == 0 {
			return strings.ToLower(strings.Join(labels, ".")), nil
		}
		if n&0xC0 != 0 {
			// Compression pointer or a reserved label type: the spec's
			// extractor only needs to handle the QNAME of a freshly
			// issued client query, which never compresses its own
			// first name. Treat it as malformed rather than guess.
			return "", fmt.Errorf("wire: unsupported label encoding 0x%02x", n)
		}
		if off+n > len(msg) {
			return "", ErrTruncated
		}
		labels = append(labels, string(msg[off:off+n]))
		off += n
	}
	return "", fmt.Errorf("wire: name exceeds %d labels", maxLabels)
}

// NewFingerprint derives a short, opaque 16-character hex handle for a
// pending request from the fields that make it unique in practice. It is
// a cryptographic hash truncated to 64 bits: collision-resistant at the
// birthday bound spec requires (~N²/2⁶⁵ across a pending set of size N),
// which is acceptable because correctness never depends on fingerprint
// uniqueness — only on the upstream-ID bimap's. The fingerprint is a
// cosmetic handle for logs and internal lookups.
func NewFingerprint(
	clientIP net.IP,
	clientPort int,
	clientQueryID uint16,
	domain string,
	now time.Time,
	counter uint64,
	random []byte,
) string {
	h := sha256.New()
	h.Write(clientIP)
	h.Write([]byte(strconv.Itoa(clientPort)))
	var idBuf [2]byte
	binary.BigEndian.PutUint16(idBuf[:], clientQueryID)
	h.Write(idBuf[:])
	h.Write([]byte(domain))
	var tBuf [8]byte
	binary.BigEndian.PutUint64(tBuf[:], uint64(now.UnixNano()))
	h.Write(tBuf[:])
	var cBuf [8]byte
	binary.BigEndian.PutUint64(cBuf[:], counter)
	h.Write(cBuf[:])
	h.Write(random)

	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:8])
}
