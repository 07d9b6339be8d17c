package httpdict

import "testing"

func TestMissingKeyNeverFails(t *testing.T) {
	d := New()
	if v := d.Get("missing"); v != "" {
		t.Fatalf("expected empty string, got %q", v)
	}
	var nilDict Dict
	if v := nilDict.Get("x"); v != "" {
		t.Fatalf("expected empty string on nil dict, got %q", v)
	}
}

func TestSetAndGet(t *testing.T) {
	d := New()
	d.Set("a", "1")
	d.Set("a", "2")
	if got := d.Get("a"); got != "2" {
		t.Fatalf("expected last write to win, got %q", got)
	}
	if !d.Has("a") {
		t.Fatalf("expected key to be present")
	}
}

func TestTypedGetsFallBackOnMissOrBadParse(t *testing.T) {
	d := New()
	d.Set("n", "42")
	d.Set("bad", "not-a-number")
	if got := d.GetInt("n", -1); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	if got := d.GetInt("missing", -1); got != -1 {
		t.Fatalf("expected default -1, got %d", got)
	}
	if got := d.GetInt("bad", -1); got != -1 {
		t.Fatalf("expected default on unparseable value, got %d", got)
	}
	d.Set("flag", "true")
	if got := d.GetBool("flag", false); !got {
		t.Fatalf("expected true")
	}
	if got := d.GetBool("missing", true); !got {
		t.Fatalf("expected default true")
	}
}
