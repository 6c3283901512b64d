package attest

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// SecpVerifier verifies ECDSA signatures over secp256k1. The signed digest is
// the sha256 of the message passed by the caller, which for meta orders is
// the intent id. Any malformed key or signature is a rejection, not an error.
type SecpVerifier struct{}

// VerifyAttestation requires a non-empty report signed off by a well-formed
// enclave key. Report contents are not interpreted here, real enclave
// verification sits behind an external service.
func (SecpVerifier) VerifyAttestation(att Attestation) bool {
	if att.Report == "" {
		return false
	}

	_, err := parsePubKey(att.PublicKey)
	return err == nil
}

// VerifySignature checks a DER encoded ECDSA signature over sha256(message)
// against the embedded compressed public key. The signature's own message
// must match the message the caller expects it to bind.
func (SecpVerifier) VerifySignature(sig Signature, message string) bool {
	if message == "" || sig.Message != message {
		return false
	}

	pubKey, err := parsePubKey(sig.PublicKey)
	if err != nil {
		return false
	}

	sigBytes, err := hex.DecodeString(sig.Signature)
	if err != nil {
		return false
	}

	ecdsaSig, err := ecdsa.ParseDERSignature(sigBytes)
	if err != nil {
		return false
	}

	digest := sha256.Sum256([]byte(message))

	return ecdsaSig.Verify(digest[:], pubKey)
}

// parsePubKey decodes a hex encoded compressed secp256k1 public key.
func parsePubKey(pubKey string) (*btcec.PublicKey, error) {
	keyBytes, err := hex.DecodeString(pubKey)
	if err != nil {
		return nil, err
	}

	return btcec.ParsePubKey(keyBytes)
}

// Compile-time checks for the verifier interfaces.
var (
	_ AttestationVerifier = (*SecpVerifier)(nil)
	_ SignatureVerifier   = (*SecpVerifier)(nil)
)
