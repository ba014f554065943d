package keys

import "testing"

func TestGenerateProducesDistinctKeys(t *testing.T) {
	a, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	b, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if a.PublicHex() == b.PublicHex() {
		t.Fatalf("two generated key pairs produced the same public key")
	}
}

func TestPublicHexRoundTrip(t *testing.T) {
	pair, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	decoded, err := DecodeKey(pair.PublicHex())
	if err != nil {
		t.Fatalf("DecodeKey() error: %v", err)
	}
	if *decoded != *pair.Public {
		t.Fatalf("decoded key != original public key")
	}
}

func TestDecodeKeyWrongLength(t *testing.T) {
	_, err := DecodeKey("AABB")
	if err == nil {
		t.Fatalf("expected error for short key")
	}
}

func TestPublicFromSecretMatchesGenerate(t *testing.T) {
	pair, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	derived, err := PublicFromSecret(pair.Secret)
	if err != nil {
		t.Fatalf("PublicFromSecret() error: %v", err)
	}
	if *derived != *pair.Public {
		t.Fatalf("derived public key != generated public key")
	}
}

func TestWriteFiles(t *testing.T) {
	dir := t.TempDir()
	pair, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	pubPath := dir + "/pub.key"
	secPath := dir + "/sec.key"
	if err := pair.WriteFiles(pubPath, secPath); err != nil {
		t.Fatalf("WriteFiles() error: %v", err)
	}
}
