// Package attest holds the verification boundary of the settlement pipeline.
// Production deployments verify real enclave reports and chain signatures
// behind these interfaces, tests and demo deployments plug in the permissive
// verifier. Verifiers are pure and total: a rejected input yields false,
// never an error.
package attest

// Attestation is a solver's claim that its quoting logic runs inside a
// trusted execution environment.
type Attestation struct {
	// EnclaveID identifies the enclave the report was produced in.
	EnclaveID string

	// Report is the raw attestation report, encoding is
	// implementation-defined.
	Report string

	// PublicKey is the hex encoded key the enclave signs with.
	PublicKey string
}

// Signature is a settlement instruction signature produced by the party
// holding the expected key.
type Signature struct {
	// Signature is the hex encoded signature bytes.
	Signature string

	// PublicKey is the hex encoded compressed public key that produced
	// the signature.
	PublicKey string

	// Message is the message the signature commits to.
	Message string
}

// AttestationVerifier authenticates that a solver's off-chain computation ran
// inside a trusted execution environment.
type AttestationVerifier interface {
	// VerifyAttestation returns true if the report is authentic.
	VerifyAttestation(att Attestation) bool
}

// SignatureVerifier authenticates that a settlement instruction was produced
// by the party holding the expected key.
type SignatureVerifier interface {
	// VerifySignature returns true if sig is a valid signature binding
	// the given message.
	VerifySignature(sig Signature, message string) bool
}
