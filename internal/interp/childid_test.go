package interp

import "testing"

func TestChildIDRoundTrip(t *testing.T) {
	cases := []ChildID{
		{Seq: 0, PID: 1},
		{Seq: 42, PID: 12345},
		{Seq: 4294967295, PID: 99},
	}
	for _, c := range cases {
		s := c.String()
		got, err := ParseChildID(s)
		if err != nil {
			t.Fatalf("ParseChildID(%q) error: %v", s, err)
		}
		if got != c {
			t.Errorf("ParseChildID(%q) = %+v, want %+v", s, got, c)
		}
	}
}

func TestParseChildIDRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"(1,2",
		"1,2)",
		"(1 2)",
		"(1,2,3)",
		"(a,2)",
		"(1,b)",
		"()",
		"(,)",
		"(-1,2)",
	}
	for _, s := range cases {
		if _, err := ParseChildID(s); err == nil {
			t.Errorf("ParseChildID(%q) expected error, got nil", s)
		}
	}
}

func TestChildIDStringFormat(t *testing.T) {
	c := ChildID{Seq: 7, PID: 1000}
	if got, want := c.String(), "(7,1000)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
