package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
)

func signHex(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	body := []byte(`{"action":"opened","number":1}`)
	header := "sha256=" + signHex("topsecret", body)

	if !Verify(body, header, "topsecret") {
		t.Error("expected valid signature to verify")
	}
}

func TestVerifyEmptyBody(t *testing.T) {
	header := "sha256=" + signHex("topsecret", nil)

	if !Verify(nil, header, "topsecret") {
		t.Error("expected empty body to verify against its own signature")
	}
	if !Verify([]byte{}, header, "topsecret") {
		t.Error("expected zero-length body to verify the same as nil")
	}
}

func TestVerifyRejectsMutations(t *testing.T) {
	body := []byte(`{"action":"opened","number":1}`)
	header := "sha256=" + signHex("topsecret", body)

	// Flip one bit in the body.
	mutated := append([]byte(nil), body...)
	mutated[0] ^= 0x01
	if Verify(mutated, header, "topsecret") {
		t.Error("mutated body must not verify")
	}

	// Flip one hex digit in the signature.
	badHeader := []byte(header)
	last := badHeader[len(badHeader)-1]
	if last == 'a' {
		badHeader[len(badHeader)-1] = 'b'
	} else {
		badHeader[len(badHeader)-1] = 'a'
	}
	if Verify(body, string(badHeader), "topsecret") {
		t.Error("mutated signature must not verify")
	}

	// Wrong secret.
	if Verify(body, header, "othersecret") {
		t.Error("signature under another secret must not verify")
	}
}

func TestVerifyRejectsMalformedHeaders(t *testing.T) {
	body := []byte(`{"ok":true}`)
	valid := signHex("topsecret", body)

	tests := []struct {
		name   string
		header string
	}{
		{"empty", ""},
		{"missing prefix", valid},
		{"wrong prefix", "sha1=" + valid},
		{"prefix only", "sha256="},
		{"not hex", "sha256=zzzz" + valid[4:]},
		{"truncated hex", "sha256=" + valid[:10]},
	}

	for _, tt := range tests {
		if Verify(body, tt.header, "topsecret") {
			t.Errorf("%s: header %q must not verify", tt.name, tt.header)
		}
	}
}

func TestVerifyRejectsEmptySecret(t *testing.T) {
	body := []byte(`{"ok":true}`)
	header := "sha256=" + signHex("", body)

	if Verify(body, header, "") {
		t.Error("empty secret must never verify")
	}
}

func TestSignRoundTrip(t *testing.T) {
	body := []byte(`{"action":"push"}`)

	header := Sign(body, "downstream-secret")
	if !strings.HasPrefix(header, "sha256=") {
		t.Fatalf("expected sha256= prefix, got %q", header)
	}
	if !Verify(body, header, "downstream-secret") {
		t.Error("signed payload must verify under the same secret")
	}
}
