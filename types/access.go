// Package types defines data types shared by all parts of the client:
// the access control bitmask and the error taxonomy.
package types

import (
	"errors"
	"strings"
)

// AcsBits is a bitmap of topic access permissions.
type AcsBits uint32

// Access mode permission bits.
const (
	ModeJoin    AcsBits = 1 << iota // user can join, i.e. {sub} (J:1)
	ModeRead                        // user can receive broadcasts ({data}, {info}) (R:2)
	ModeWrite                       // user can publish, i.e. {pub} (W:4)
	ModePres                        // user can receive presence updates (P:8)
	ModeApprove                     // user can approve new members or evict existing members (A:0x10)
	ModeShare                       // user can invite new members (S:0x20)
	ModeDelete                      // user can hard-delete messages (D:0x40)
	ModeOwner                       // user is the owner (O:0x80) - full access

	// ModeNone is explicitly no access, all bits cleared.
	ModeNone AcsBits = 0

	// ModeUnset indicates an unknown or undefined mode, to make it distinct
	// from ModeNone.
	ModeUnset AcsBits = 0x100

	// ModeInvalid indicates unparsable input. Deliberately out of the 8-bit range.
	ModeInvalid AcsBits = 0x100000

	// ModeBitmask covers all valid permission bits.
	ModeBitmask AcsBits = ModeJoin | ModeRead | ModeWrite | ModePres |
		ModeApprove | ModeShare | ModeDelete | ModeOwner
)

var acsLetters = []byte{'J', 'R', 'W', 'P', 'A', 'S', 'D', 'O'}

// ParseAcs parses a permission string into a set of bits.
// An empty string yields ModeUnset, "N" or "n" yields ModeNone.
// Unrecognized characters are silently skipped.
func ParseAcs(mode string) AcsBits {
	if mode == "" {
		return ModeUnset
	}
	if mode == "N" || mode == "n" {
		return ModeNone
	}

	m0 := ModeNone
	for i := 0; i < len(mode); i++ {
		switch mode[i] {
		case 'J', 'j':
			m0 |= ModeJoin
		case 'R', 'r':
			m0 |= ModeRead
		case 'W', 'w':
			m0 |= ModeWrite
		case 'P', 'p':
			m0 |= ModePres
		case 'A', 'a':
			m0 |= ModeApprove
		case 'S', 's':
			m0 |= ModeShare
		case 'D', 'd':
			m0 |= ModeDelete
		case 'O', 'o':
			m0 |= ModeOwner
		default:
			// Unrecognized bit, skip.
		}
	}
	return m0
}

// EncodeAcs converts a set of bits to the string form. ModeUnset and
// ModeInvalid produce an empty string, ModeNone produces "N".
func EncodeAcs(m AcsBits) string {
	if m == ModeUnset || m == ModeInvalid {
		return ""
	}
	if m == ModeNone {
		return "N"
	}

	var res []byte
	for i, chr := range acsLetters {
		if m&(1<<uint(i)) != 0 {
			res = append(res, chr)
		}
	}
	return string(res)
}

// UpdateAcs applies an update to a set of permission bits. The update is
// either a delta string starting with '+' or '-' ("+R-W", "-PS+A"), or a
// full replacement value ("JRW"). An invalid token aborts the whole update
// and the original value is returned unchanged.
func UpdateAcs(val AcsBits, upd string) AcsBits {
	if upd == "" {
		return val
	}

	if upd[0] != '+' && upd[0] != '-' {
		// Explicit new value rather than a delta.
		if m0 := ParseAcs(upd); m0 != ModeInvalid {
			return m0
		}
		return val
	}

	res := val
	for i := 0; i < len(upd); {
		sign := upd[i]
		i++
		j := i
		for j < len(upd) && upd[j] != '+' && upd[j] != '-' {
			j++
		}
		m0 := ParseAcs(upd[i:j])
		i = j
		if m0 == ModeInvalid {
			return val
		}
		if m0 == ModeUnset {
			continue
		}
		if sign == '+' {
			res |= m0
		} else {
			res &^= m0
		}
	}
	return res
}

// DiffAcs returns the bits present in a1 but missing in a2.
// ModeInvalid on either side propagates.
func DiffAcs(a1, a2 AcsBits) AcsBits {
	if a1 == ModeInvalid || a2 == ModeInvalid {
		return ModeInvalid
	}
	return a1.defined() &^ a2.defined()
}

func (m AcsBits) defined() AcsBits {
	if m == ModeUnset || m == ModeInvalid {
		return ModeNone
	}
	return m
}

func (m AcsBits) String() string {
	return EncodeAcs(m)
}

// Delta returns the changes between two modes as a string: old.Delta(new).
// JRPAS -> JRWS: "+W-PA". A zero delta is an empty string.
func (m AcsBits) Delta(n AcsBits) string {
	var added, removed string
	if n2o := n &^ m; n2o > 0 {
		added = "+" + n2o.String()
	}
	if o2n := m &^ n; o2n > 0 {
		removed = "-" + o2n.String()
	}
	return added + removed
}

// BetterEqual checks if grant mode allows all that was requested in want mode.
func (m AcsBits) BetterEqual(want AcsBits) bool {
	return m&want == want
}

// IsJoiner checks if the Join flag is set.
func (m AcsBits) IsJoiner() bool {
	return m.defined()&ModeJoin != 0
}

// IsOwner checks if the Owner flag is set.
func (m AcsBits) IsOwner() bool {
	return m.defined()&ModeOwner != 0
}

// IsApprover checks if the Approve flag is set.
func (m AcsBits) IsApprover() bool {
	return m.defined()&ModeApprove != 0
}

// IsAdmin checks if either Owner or Approve is set.
func (m AcsBits) IsAdmin() bool {
	return m.IsOwner() || m.IsApprover()
}

// IsSharer checks for admin rights or the Share flag.
func (m AcsBits) IsSharer() bool {
	return m.IsAdmin() || m.defined()&ModeShare != 0
}

// IsWriter checks if publishing is allowed.
func (m AcsBits) IsWriter() bool {
	return m.defined()&ModeWrite != 0
}

// IsReader checks if receiving broadcasts is allowed.
func (m AcsBits) IsReader() bool {
	return m.defined()&ModeRead != 0
}

// IsPresencer checks if the user receives presence updates.
func (m AcsBits) IsPresencer() bool {
	return m.defined()&ModePres != 0
}

// IsMuted checks if the Presence flag is NOT set.
func (m AcsBits) IsMuted() bool {
	return !m.IsPresencer()
}

// IsDeleter checks if the user can hard-delete messages.
func (m AcsBits) IsDeleter() bool {
	return m.defined()&ModeDelete != 0
}

// IsZero checks if no permissions are set.
func (m AcsBits) IsZero() bool {
	return m == ModeNone
}

// IsInvalid checks if the mode is unparsable.
func (m AcsBits) IsInvalid() bool {
	return m == ModeInvalid
}

// IsDefined checks if the mode carries an actual value.
func (m AcsBits) IsDefined() bool {
	return m != ModeUnset && m != ModeInvalid
}

// AccessMode is a topic access mode: the permissions requested by the user,
// the permissions granted by the topic admin, and their intersection.
type AccessMode struct {
	// Given is the mode granted by the topic manager.
	Given AcsBits
	// Want is the mode requested by the user.
	Want AcsBits
	// Mode is the effective mode, normally Given & Want.
	Mode AcsBits
}

// NewAccessMode constructs an AccessMode from wire strings. When the mode
// string is empty the effective mode is derived as the intersection of
// given and want.
func NewAccessMode(given, want, mode string) AccessMode {
	a := AccessMode{
		Given: ParseAcs(given),
		Want:  ParseAcs(want),
	}
	if mode != "" {
		a.Mode = ParseAcs(mode)
	} else {
		a.Mode = a.Given.defined() & a.Want.defined()
	}
	return a
}

// Side returns the requested component of the access mode: "given", "want",
// or "mode". An empty side defaults to "mode". An unrecognized side name is
// a usage error.
func (a AccessMode) Side(side string) (AcsBits, error) {
	switch side {
	case "", "mode":
		return a.Mode, nil
	case "given":
		return a.Given, nil
	case "want":
		return a.Want, nil
	}
	return ModeInvalid, errors.New("invalid AccessMode component '" + side + "'")
}

// UpdateGiven applies an update string to the 'given' component.
func (a *AccessMode) UpdateGiven(upd string) *AccessMode {
	a.Given = UpdateAcs(a.Given, upd)
	return a
}

// UpdateWant applies an update string to the 'want' component.
func (a *AccessMode) UpdateWant(upd string) *AccessMode {
	a.Want = UpdateAcs(a.Want, upd)
	return a
}

// UpdateMode applies an update string to the effective mode.
func (a *AccessMode) UpdateMode(upd string) *AccessMode {
	a.Mode = UpdateAcs(a.Mode, upd)
	return a
}

// SetMode assigns the effective mode directly.
func (a *AccessMode) SetMode(mode string) *AccessMode {
	a.Mode = ParseAcs(mode)
	return a
}

// UpdateAll applies updates to 'given' and 'want' and re-derives the
// effective mode as their intersection.
func (a *AccessMode) UpdateAll(given, want string) *AccessMode {
	a.UpdateGiven(given)
	a.UpdateWant(want)
	a.Mode = a.Given.defined() & a.Want.defined()
	return a
}

// Missing returns permissions present in 'want' but missing in 'given'.
func (a AccessMode) Missing() AcsBits {
	return a.Want.defined() &^ a.Given.defined()
}

// Excessive returns permissions present in 'given' but missing in 'want'.
func (a AccessMode) Excessive() AcsBits {
	return a.Given.defined() &^ a.Want.defined()
}

func (a AccessMode) String() string {
	var parts []string
	if s := EncodeAcs(a.Mode); s != "" {
		parts = append(parts, "m="+s)
	}
	if s := EncodeAcs(a.Given); s != "" {
		parts = append(parts, "g="+s)
	}
	if s := EncodeAcs(a.Want); s != "" {
		parts = append(parts, "w="+s)
	}
	return strings.Join(parts, " ")
}
