package checksum

import "testing"

func TestSum(t *testing.T) {
	// sha256("")
	if got := Sum(nil); got != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Errorf("Sum(nil) = %s", got)
	}
}

func TestKey_PartBoundaries(t *testing.T) {
	if Key("ab", "c") == Key("a", "bc") {
		t.Error("keys collide across part boundaries")
	}
	if Key("x", "y") != Key("x", "y") {
		t.Error("key not deterministic")
	}
	if len(Key("x")) != 64 {
		t.Errorf("len = %d", len(Key("x")))
	}
}
