package tlv

import (
	"bytes"
	"io"
	"testing"
)

func TestStructRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	if err := w.StartStructure(Anonymous()); err != nil {
		t.Fatalf("StartStructure: %v", err)
	}
	if err := w.PutBytes(ContextTag(1), []byte{0xAA, 0xBB, 0xCC}); err != nil {
		t.Fatalf("PutBytes: %v", err)
	}
	if err := w.PutUint(ContextTag(2), 1234); err != nil {
		t.Fatalf("PutUint: %v", err)
	}
	if err := w.PutString(ContextTag(3), "matter"); err != nil {
		t.Fatalf("PutString: %v", err)
	}
	if err := w.PutNull(ContextTag(4)); err != nil {
		t.Fatalf("PutNull: %v", err)
	}
	if err := w.EndContainer(); err != nil {
		t.Fatalf("EndContainer: %v", err)
	}

	r := NewReader(bytes.NewReader(buf.Bytes()))
	if err := r.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if r.Type() != ElementTypeStruct {
		t.Fatalf("expected struct, got %v", r.Type())
	}
	if err := r.EnterContainer(); err != nil {
		t.Fatalf("EnterContainer: %v", err)
	}

	if err := r.Next(); err != nil {
		t.Fatalf("Next bytes: %v", err)
	}
	if !r.Tag().IsContext() || r.Tag().TagNumber() != 1 {
		t.Fatalf("unexpected tag: %v", r.Tag())
	}
	b, err := r.Bytes()
	if err != nil || !bytes.Equal(b, []byte{0xAA, 0xBB, 0xCC}) {
		t.Fatalf("Bytes mismatch: %v %v", b, err)
	}

	if err := r.Next(); err != nil {
		t.Fatalf("Next uint: %v", err)
	}
	v, err := r.Uint()
	if err != nil || v != 1234 {
		t.Fatalf("Uint mismatch: %v %v", v, err)
	}

	if err := r.Next(); err != nil {
		t.Fatalf("Next string: %v", err)
	}
	s, err := r.String()
	if err != nil || s != "matter" {
		t.Fatalf("String mismatch: %q %v", s, err)
	}

	if err := r.Next(); err != nil {
		t.Fatalf("Next null: %v", err)
	}
	if r.Type() != ElementTypeNull {
		t.Fatalf("expected null, got %v", r.Type())
	}

	if err := r.Next(); err != nil {
		t.Fatalf("Next end: %v", err)
	}
	if !r.IsEndOfContainer() {
		t.Fatalf("expected end of container")
	}
}

func TestSkipNestedContainer(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.StartStructure(Anonymous()); err != nil {
		t.Fatal(err)
	}
	if err := w.StartArray(ContextTag(1)); err != nil {
		t.Fatal(err)
	}
	if err := w.PutUint(Anonymous(), 1); err != nil {
		t.Fatal(err)
	}
	if err := w.PutUint(Anonymous(), 2); err != nil {
		t.Fatal(err)
	}
	if err := w.EndContainer(); err != nil {
		t.Fatal(err)
	}
	if err := w.PutUint(ContextTag(2), 99); err != nil {
		t.Fatal(err)
	}
	if err := w.EndContainer(); err != nil {
		t.Fatal(err)
	}

	r := NewReader(bytes.NewReader(buf.Bytes()))
	if err := r.Next(); err != nil {
		t.Fatal(err)
	}
	if err := r.EnterContainer(); err != nil {
		t.Fatal(err)
	}
	if err := r.Next(); err != nil {
		t.Fatal(err)
	}
	if r.Type() != ElementTypeArray {
		t.Fatalf("expected array, got %v", r.Type())
	}
	if err := r.Skip(); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	if err := r.Next(); err != nil {
		t.Fatal(err)
	}
	if r.Tag().TagNumber() != 2 {
		t.Fatalf("expected tag 2 after skip, got %v", r.Tag())
	}
	v, err := r.Uint()
	if err != nil || v != 99 {
		t.Fatalf("Uint mismatch after skip: %v %v", v, err)
	}
	if err := r.Next(); err != nil {
		t.Fatal(err)
	}
	if !r.IsEndOfContainer() {
		t.Fatalf("expected end of container")
	}
	if err := r.Next(); err != io.EOF {
		t.Fatalf("expected EOF at top level, got %v", err)
	}
}
