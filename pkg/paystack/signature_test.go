package paystack

import "testing"

func TestVerifySignatureRoundTrip(t *testing.T) {
	secret := "sk_test_secret"
	payload := []byte(`{"event":"charge.success","data":{"reference":"ref-1"}}`)

	sig := ComputeSignature(secret, payload)
	if !VerifySignature(secret, payload, sig) {
		t.Fatalf("expected valid signature to verify")
	}
}

func TestVerifySignatureRejectsMutatedPayload(t *testing.T) {
	secret := "sk_test_secret"
	payload := []byte(`{"event":"charge.success","data":{"reference":"ref-1"}}`)
	sig := ComputeSignature(secret, payload)

	for i := range payload {
		mutated := append([]byte(nil), payload...)
		mutated[i] ^= 0x01
		if VerifySignature(secret, mutated, sig) {
			t.Fatalf("signature verified after mutating byte %d", i)
		}
	}
}

func TestVerifySignatureRejectsWrongSecret(t *testing.T) {
	payload := []byte(`{"event":"charge.success"}`)
	sig := ComputeSignature("sk_test_a", payload)
	if VerifySignature("sk_test_b", payload, sig) {
		t.Fatalf("signature verified under wrong secret")
	}
}

func TestVerifySignatureRejectsEmptyInputs(t *testing.T) {
	payload := []byte(`{}`)
	if VerifySignature("", payload, ComputeSignature("", payload)) {
		t.Fatalf("empty secret must never verify")
	}
	if VerifySignature("secret", payload, "") {
		t.Fatalf("empty header must never verify")
	}
}
