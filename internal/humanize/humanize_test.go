package humanize

import (
	"testing"
	"time"
)

func TestBytes(t *testing.T) {
	if got := Bytes(1500); got != "1.5 kB" {
		t.Fatalf("Bytes(1500) = %q", got)
	}
	if got := Bytes(-1500); got != "-1.5 kB" {
		t.Fatalf("Bytes(-1500) = %q", got)
	}
}

func TestDuration(t *testing.T) {
	if got := Duration(0); got != "0s" {
		t.Fatalf("Duration(0) = %q", got)
	}
	if got := Duration(151 * time.Second); got != "2m31s" {
		t.Fatalf("Duration(151s) = %q", got)
	}
}
