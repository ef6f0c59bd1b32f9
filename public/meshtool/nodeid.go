package meshtool

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// BroadcastID is the destination used for packets addressed to every node.
const BroadcastID NodeID = 0xffffffff

var ErrInvalidNodeID = errors.New("invalid node id")

// NodeID is the numeric identifier of a device on the mesh.
type NodeID uint32

func (n NodeID) Uint32() uint32 {
	return uint32(n)
}

// String renders the id the way Meshtastic clients print it, e.g. !0000007b.
func (n NodeID) String() string {
	return fmt.Sprintf("!%08x", uint32(n))
}

// RandomNodeID returns an id usable on the mesh. Zero and the broadcast
// address are reserved and never returned.
func RandomNodeID() (NodeID, error) {
	var buf [4]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, fmt.Errorf("reading random bytes: %w", err)
		}
		id := NodeID(binary.LittleEndian.Uint32(buf[:]))
		if id != 0 && id != BroadcastID {
			return id, nil
		}
	}
}

// ParseNodeID accepts either a decimal node number or the !hex form.
func ParseNodeID(s string) (NodeID, error) {
	s = strings.TrimSpace(s)
	var (
		v   uint64
		err error
	)
	if hex, ok := strings.CutPrefix(s, "!"); ok {
		v, err = strconv.ParseUint(hex, 16, 32)
	} else {
		v, err = strconv.ParseUint(s, 10, 32)
	}
	if err != nil {
		return 0, fmt.Errorf("%w %q: %v", ErrInvalidNodeID, s, err)
	}
	id := NodeID(v)
	if id == 0 || id == BroadcastID {
		return 0, fmt.Errorf("%w %q: reserved", ErrInvalidNodeID, s)
	}
	return id, nil
}
