package common

import (
	"errors"
	"testing"
)

func TestGuardNilView(t *testing.T) {
	if err := Guard(nil, "lending"); err != nil {
		t.Fatalf("expected nil view to allow, got %v", err)
	}
}

func TestStaticPauses(t *testing.T) {
	pauses := NewStaticPauses(" Lending ", "")
	if err := Guard(pauses, "lending"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(pauses, "swap"); err != nil {
		t.Fatalf("expected swap to be unpaused, got %v", err)
	}
	if err := Guard(pauses, ""); err != nil {
		t.Fatalf("expected empty module to be ignored, got %v", err)
	}
	var empty StaticPauses
	if empty.IsPaused("lending") {
		t.Fatalf("nil pause set must not pause anything")
	}
}
