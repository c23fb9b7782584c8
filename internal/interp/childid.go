// Package interp spawns and controls the hot-spare interpreter: PTY
// allocation, the control-channel handshake, and the bootstrap script it
// executes.
package interp

import (
	"fmt"
	"strconv"
	"strings"
)

// ChildID identifies a spawned interpreter by a monotonically increasing
// sequence number paired with its OS process id, so a stale pid that has
// been recycled by the kernel can never be mistaken for the child it once
// named.
type ChildID struct {
	Seq uint32
	PID int
}

func (c ChildID) String() string {
	return fmt.Sprintf("(%d,%d)", c.Seq, c.PID)
}

// ParseChildID parses the textual form produced by String. Whitespace
// around the whole form is ignored; both components must consist of
// decimal digits only.
func ParseChildID(s string) (ChildID, error) {
	s = strings.TrimSpace(s)
	if len(s) < 5 || s[0] != '(' || s[len(s)-1] != ')' {
		return ChildID{}, fmt.Errorf("parse child id %q: expected form (seq,pid)", s)
	}

	inner := s[1 : len(s)-1]
	parts := strings.SplitN(inner, ",", 2)
	if len(parts) != 2 {
		return ChildID{}, fmt.Errorf("parse child id %q: expected exactly one comma", s)
	}
	for _, p := range parts {
		if p == "" || strings.Trim(p, "0123456789") != "" {
			return ChildID{}, fmt.Errorf("parse child id %q: components must be decimal digits", s)
		}
	}

	seq, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return ChildID{}, fmt.Errorf("parse child id %q: bad seq: %w", s, err)
	}
	pid, err := strconv.Atoi(parts[1])
	if err != nil {
		return ChildID{}, fmt.Errorf("parse child id %q: bad pid: %w", s, err)
	}

	return ChildID{Seq: uint32(seq), PID: pid}, nil
}
