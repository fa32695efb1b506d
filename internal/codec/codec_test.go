package codec

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var testDisc = AccountDiscriminator("Test")

func TestDecoderSkipsUnknownAndDefaultsMissing(t *testing.T) {
	// A newer writer appended field 9; an older record lacks field 3.
	e := NewEncoder(testDisc)
	e.Uint(1, 42)
	e.String(2, "btc-50k")
	e.Uint(9, 7)

	d, err := NewDecoder(testDisc, e.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if got := d.Uint(1); got != 42 {
		t.Errorf("field 1 = %d, want 42", got)
	}
	if got := d.String(2); got != "btc-50k" {
		t.Errorf("field 2 = %q", got)
	}
	if got := d.Address(3); got != (common.Address{}) {
		t.Errorf("missing field 3 = %s, want zero", got)
	}
	if err := d.Err(); err != nil {
		t.Fatal(err)
	}
}

func TestDecoderRejectsWrongDiscriminator(t *testing.T) {
	e := NewEncoder(AccountDiscriminator("Other"))
	e.Uint(1, 1)
	if _, err := NewDecoder(testDisc, e.Bytes()); !errors.Is(err, ErrDiscriminator) {
		t.Fatalf("err = %v, want ErrDiscriminator", err)
	}
	if _, err := NewDecoder(testDisc, testDisc[:4]); !errors.Is(err, ErrDiscriminator) {
		t.Fatalf("short data: err = %v, want ErrDiscriminator", err)
	}
}

func TestDecoderRejectsTruncatedField(t *testing.T) {
	e := NewEncoder(testDisc)
	e.String(1, "a long enough value")
	data := e.Bytes()
	if _, err := NewDecoder(testDisc, data[:len(data)-3]); !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestDecoderTypeMismatchIsSticky(t *testing.T) {
	e := NewEncoder(testDisc)
	e.String(1, "x")
	e.Uint(2, 5)
	d, err := NewDecoder(testDisc, e.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	_ = d.Uint(1)
	if got := d.Uint(2); got != 0 {
		t.Errorf("getter after error returned %d, want 0", got)
	}
	if !errors.Is(d.Err(), ErrMalformed) {
		t.Fatalf("Err = %v, want ErrMalformed", d.Err())
	}
}

func TestDecoderBoundsNarrowIntegers(t *testing.T) {
	e := NewEncoder(testDisc)
	e.Uint(1, 256)
	d, err := NewDecoder(testDisc, e.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	d.Uint8(1)
	if !errors.Is(d.Err(), ErrMalformed) {
		t.Fatalf("Err = %v, want ErrMalformed", d.Err())
	}
}

func TestDiscriminatorsDiffer(t *testing.T) {
	if AccountDiscriminator("Market") == InstructionDiscriminator("Market") {
		t.Fatal("account and instruction namespaces collide")
	}
}
