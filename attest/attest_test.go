package attest

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/stretchr/testify/require"
)

// signMessage produces a hex encoded DER signature over sha256(message).
func signMessage(t *testing.T, key *btcec.PrivateKey, message string) string {
	t.Helper()

	digest := sha256.Sum256([]byte(message))
	sig := ecdsa.Sign(key, digest[:])

	return hex.EncodeToString(sig.Serialize())
}

// TestPermissiveVerifier tests the structural checks of the permissive
// verifier.
func TestPermissiveVerifier(t *testing.T) {
	v := PermissiveVerifier{}

	require.True(t, v.VerifyAttestation(Attestation{Report: "report"}))
	require.False(t, v.VerifyAttestation(Attestation{}))

	sig := Signature{Signature: "sig"}
	require.True(t, v.VerifySignature(sig, "intent-1"))
	require.False(t, v.VerifySignature(sig, ""))
	require.False(t, v.VerifySignature(Signature{}, "intent-1"))
}

// TestSecpVerifySignature tests real ECDSA signatures against the secp
// verifier.
func TestSecpVerifySignature(t *testing.T) {
	v := SecpVerifier{}

	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	pubKey := hex.EncodeToString(key.PubKey().SerializeCompressed())

	const message = "intent-1"
	sig := Signature{
		Signature: signMessage(t, key, message),
		PublicKey: pubKey,
		Message:   message,
	}

	require.True(t, v.VerifySignature(sig, message))

	// The signature must bind the message the caller expects.
	require.False(t, v.VerifySignature(sig, "intent-2"))

	mismatched := sig
	mismatched.Message = "intent-2"
	require.False(t, v.VerifySignature(mismatched, message))

	// A signature by a different key is rejected.
	otherKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	forged := sig
	forged.Signature = signMessage(t, otherKey, message)
	require.False(t, v.VerifySignature(forged, message))

	// Malformed keys and signatures are rejections, not errors.
	malformedKey := sig
	malformedKey.PublicKey = "not-hex"
	require.False(t, v.VerifySignature(malformedKey, message))

	malformedSig := sig
	malformedSig.Signature = "abcd"
	require.False(t, v.VerifySignature(malformedSig, message))
}

// TestSecpVerifyAttestation tests the attestation checks of the secp
// verifier.
func TestSecpVerifyAttestation(t *testing.T) {
	v := SecpVerifier{}

	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	att := Attestation{
		EnclaveID: "enclave-1",
		Report:    "report-1",
		PublicKey: hex.EncodeToString(
			key.PubKey().SerializeCompressed(),
		),
	}
	require.True(t, v.VerifyAttestation(att))

	noReport := att
	noReport.Report = ""
	require.False(t, v.VerifyAttestation(noReport))

	badKey := att
	badKey.PublicKey = "not-a-key"
	require.False(t, v.VerifyAttestation(badKey))
}
