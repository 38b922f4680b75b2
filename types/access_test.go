package types

import (
	"testing"
)

func TestParseAcs(t *testing.T) {
	tests := []struct {
		input string
		want  AcsBits
	}{
		{"", ModeUnset},
		{"N", ModeNone},
		{"n", ModeNone},
		{"J", ModeJoin},
		{"JRWP", ModeJoin | ModeRead | ModeWrite | ModePres},
		{"jrwp", ModeJoin | ModeRead | ModeWrite | ModePres},
		{"JRWPASDO", ModeBitmask},
		{"OD", ModeOwner | ModeDelete},
		// Unknown characters are skipped.
		{"JXR", ModeJoin | ModeRead},
	}
	for _, tc := range tests {
		if got := ParseAcs(tc.input); got != tc.want {
			t.Errorf("ParseAcs(%q) = 0x%x, want 0x%x", tc.input, got, tc.want)
		}
	}
}

func TestEncodeAcs(t *testing.T) {
	tests := []struct {
		input AcsBits
		want  string
	}{
		{ModeUnset, ""},
		{ModeInvalid, ""},
		{ModeNone, "N"},
		{ModeJoin | ModeRead | ModeWrite, "JRW"},
		{ModeBitmask, "JRWPASDO"},
	}
	for _, tc := range tests {
		if got := EncodeAcs(tc.input); got != tc.want {
			t.Errorf("EncodeAcs(0x%x) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestUpdateAcs(t *testing.T) {
	tests := []struct {
		val  AcsBits
		upd  string
		want AcsBits
	}{
		// Empty update is a noop.
		{ModeJoin | ModeRead, "", ModeJoin | ModeRead},
		// Delta additions and removals.
		{ModeJoin | ModeRead, "+W", ModeJoin | ModeRead | ModeWrite},
		{ModeJoin | ModeRead | ModeWrite, "-W", ModeJoin | ModeRead},
		{ModeJoin | ModeRead | ModeWrite, "+P-W", ModeJoin | ModeRead | ModePres},
		{ModeBitmask, "-PS+A", ModeBitmask &^ (ModePres | ModeShare)},
		// Removing an absent bit is harmless.
		{ModeJoin, "-O", ModeJoin},
		// A bare string is a full replacement.
		{ModeBitmask, "JW", ModeJoin | ModeWrite},
		{ModeBitmask, "N", ModeNone},
	}
	for _, tc := range tests {
		if got := UpdateAcs(tc.val, tc.upd); got != tc.want {
			t.Errorf("UpdateAcs(0x%x, %q) = 0x%x, want 0x%x", tc.val, tc.upd, got, tc.want)
		}
	}
}

func TestDelta(t *testing.T) {
	tests := []struct {
		oldMode, newMode string
		want             string
	}{
		{"JRPAS", "JRWS", "+W-PA"},
		{"JRW", "JRW", ""},
		{"", "JR", "+JR"},
		{"JR", "N", "-JR"},
	}
	for _, tc := range tests {
		o, n := ParseAcs(tc.oldMode), ParseAcs(tc.newMode)
		if got := o.Delta(n); got != tc.want {
			t.Errorf("%q.Delta(%q) = %q, want %q", tc.oldMode, tc.newMode, got, tc.want)
		}
	}
	// The delta must round trip.
	o, n := ParseAcs("JRPAS"), ParseAcs("JRWS")
	if got := UpdateAcs(o, o.Delta(n)); got != n {
		t.Errorf("round trip failed: got 0x%x, want 0x%x", got, n)
	}
}

func TestNewAccessMode(t *testing.T) {
	// Empty mode string derives the effective mode as given & want.
	a := NewAccessMode("JRWPS", "JRWA", "")
	if want := ParseAcs("JRW"); a.Mode != want {
		t.Errorf("derived mode = 0x%x, want 0x%x", a.Mode, want)
	}

	// An explicit mode string is taken as is.
	a = NewAccessMode("JRWPS", "JRWA", "JR")
	if want := ParseAcs("JR"); a.Mode != want {
		t.Errorf("explicit mode = 0x%x, want 0x%x", a.Mode, want)
	}

	// Unset components stay unset.
	a = NewAccessMode("", "", "")
	if a.Given != ModeUnset || a.Want != ModeUnset {
		t.Errorf("expected unset components, got given=0x%x want=0x%x", a.Given, a.Want)
	}
	if a.Mode != ModeNone {
		t.Errorf("mode of unset components = 0x%x, want 0", a.Mode)
	}
}

func TestUpdateAll(t *testing.T) {
	a := NewAccessMode("JRWPS", "JRW", "")
	a.UpdateAll("-S", "+P")
	if want := ParseAcs("JRWP"); a.Given != want {
		t.Errorf("given = 0x%x, want 0x%x", a.Given, want)
	}
	if want := ParseAcs("JRWP"); a.Want != want {
		t.Errorf("want = 0x%x, want 0x%x", a.Want, want)
	}
	// The effective mode is re-derived.
	if want := ParseAcs("JRWP"); a.Mode != want {
		t.Errorf("mode = 0x%x, want 0x%x", a.Mode, want)
	}
}

func TestSide(t *testing.T) {
	a := NewAccessMode("JRWPS", "JRW", "")
	if got, err := a.Side(""); err != nil || got != a.Mode {
		t.Errorf("Side(\"\") = 0x%x, %v", got, err)
	}
	if got, err := a.Side("given"); err != nil || got != a.Given {
		t.Errorf("Side(given) = 0x%x, %v", got, err)
	}
	if got, err := a.Side("want"); err != nil || got != a.Want {
		t.Errorf("Side(want) = 0x%x, %v", got, err)
	}
	if _, err := a.Side("bogus"); err == nil {
		t.Error("Side(bogus): expected error")
	}
}

func TestMissingExcessive(t *testing.T) {
	a := NewAccessMode("JRW", "JRWPS", "")
	if want := ParseAcs("PS"); a.Missing() != want {
		t.Errorf("Missing() = 0x%x, want 0x%x", a.Missing(), want)
	}
	a = NewAccessMode("JRWPS", "JRW", "")
	if want := ParseAcs("PS"); a.Excessive() != want {
		t.Errorf("Excessive() = 0x%x, want 0x%x", a.Excessive(), want)
	}
}

func TestPredicates(t *testing.T) {
	m := ParseAcs("JRWPA")
	if !m.IsJoiner() || !m.IsReader() || !m.IsWriter() || !m.IsPresencer() {
		t.Error("expected JRWP to be set")
	}
	if !m.IsApprover() || !m.IsAdmin() || !m.IsSharer() {
		t.Error("approver implies admin and sharer")
	}
	if m.IsOwner() || m.IsDeleter() || m.IsMuted() {
		t.Error("unexpected bits set")
	}
	if !ModeUnset.IsMuted() {
		t.Error("unset mode must be muted")
	}
	if ModeUnset.IsDefined() || ModeInvalid.IsDefined() {
		t.Error("unset and invalid are not defined values")
	}
}
