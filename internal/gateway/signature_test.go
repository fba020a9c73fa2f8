package gateway

import "testing"

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"event_id":"evt-1","event_type":"payout.paid"}`)

	signature := SignPayload(secret, body)
	if !VerifySignature(secret, body, signature) {
		t.Fatal("Valid signature rejected")
	}
}

func TestVerifySignature_TamperedBody(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"event_id":"evt-1"}`)
	signature := SignPayload(secret, body)

	tampered := []byte(`{"event_id":"evt-2"}`)
	if VerifySignature(secret, tampered, signature) {
		t.Fatal("Tampered body accepted")
	}
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	body := []byte(`{"event_id":"evt-1"}`)
	signature := SignPayload("whsec_a", body)

	if VerifySignature("whsec_b", body, signature) {
		t.Fatal("Signature from wrong secret accepted")
	}
}

func TestVerifySignature_EmptySecretNeverVerifies(t *testing.T) {
	body := []byte(`{"event_id":"evt-1"}`)
	if VerifySignature("", body, SignPayload("", body)) {
		t.Fatal("Empty secret must never verify")
	}
	if VerifySignature("secret", body, "") {
		t.Fatal("Empty signature must never verify")
	}
}

func TestIsTimeout(t *testing.T) {
	gwErr := &Error{StatusCode: 422, Code: "invalid_destination", Message: "rejected"}
	if IsTimeout(gwErr) {
		t.Error("Definitive rejection classified as timeout")
	}
}
