package history

import (
	"errors"
	"testing"
)

func TestFingerprintIsStable(t *testing.T) {
	inputs := []string{"", "hello", "héllo wörld", "line1\nline2", string([]byte{0x89, 0x50, 0x4e, 0x47})}
	for _, in := range inputs {
		first := Fingerprint(in)
		second := Fingerprint(in)
		if first != second {
			t.Fatalf("fingerprint of %q changed between calls: %s != %s", in, first, second)
		}
		if len(first) != 64 {
			t.Fatalf("expected 64 hex chars, got %d", len(first))
		}
	}
}

func TestFingerprintDistinguishesPayloads(t *testing.T) {
	seen := make(map[string]string)
	for _, in := range []string{"a", "b", "A", "a ", " a", "ab", "ba"} {
		fp := Fingerprint(in)
		if prev, ok := seen[fp]; ok {
			t.Fatalf("fingerprint collision between %q and %q", prev, in)
		}
		seen[fp] = in
	}
}

func TestFingerprintKnownValue(t *testing.T) {
	const want = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got := Fingerprint("hello"); got != want {
		t.Fatalf("expected sha256 hex %s, got %s", want, got)
	}
}

func TestParseKind(t *testing.T) {
	cases := map[string]Kind{
		"text":       KindText,
		"TEXT":       KindText,
		"text/plain": KindText,
		"image":      KindImage,
		"image/png":  KindImage,
		"rtf":        KindUnknown,
		"":           KindUnknown,
	}
	for in, want := range cases {
		if got := ParseKind(in); got != want {
			t.Fatalf("ParseKind(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestKindValidate(t *testing.T) {
	if err := KindText.Validate(); err != nil {
		t.Fatalf("text should be valid: %v", err)
	}
	if err := KindImage.Validate(); err != nil {
		t.Fatalf("image should be valid: %v", err)
	}
	if err := KindUnknown.Validate(); !errors.Is(err, ErrUnsupportedKind) {
		t.Fatalf("expected ErrUnsupportedKind, got %v", err)
	}
}

func TestPreview(t *testing.T) {
	e := Entry{Kind: KindText, Content: "héllo world"}
	if got := e.Preview(5); got != "héllo…" {
		t.Fatalf("unexpected preview %q", got)
	}
	if got := e.Preview(100); got != "héllo world" {
		t.Fatalf("unexpected preview %q", got)
	}
	img := Entry{Kind: KindImage, Content: "aGVsbG8="}
	if got := img.Preview(5); got != "[image, 8 bytes base64]" {
		t.Fatalf("unexpected image preview %q", got)
	}
}
