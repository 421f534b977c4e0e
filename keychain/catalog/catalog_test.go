package catalog

import "testing"

func TestNameKnownCode(t *testing.T) {
	if got := Name(KeyType, 1); got != "CSSM_KEYCLASS_PRIVATE_KEY" {
		t.Fatalf("Name(KeyType, 1) = %q, want CSSM_KEYCLASS_PRIVATE_KEY", got)
	}
}

func TestNameUnknownCodeFallsBackToHex(t *testing.T) {
	got := Name(ProtocolType, 0xDEADBEEF)
	if got != "0xdeadbeef" {
		t.Fatalf("Name(ProtocolType, 0xDEADBEEF) = %q, want 0xdeadbeef", got)
	}
}

func TestRecordTypeConstantsAreDistinct(t *testing.T) {
	seen := map[uint32]bool{}
	for _, v := range []uint32{
		RecordCertificate, RecordGenericPassword, RecordInternetPassword,
		RecordAppleSharePassword, RecordPublicKey, RecordPrivateKey,
		RecordSymmetricKey, RecordMetadata,
	} {
		if seen[v] {
			t.Fatalf("duplicate record-type constant %#x", v)
		}
		seen[v] = true
	}
}
