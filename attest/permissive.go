package attest

// PermissiveVerifier accepts any non-empty attestation report and any
// non-empty signature. It mirrors the behavior of the reference deployment
// where enclave verification is out of scope, and doubles as the test stub.
type PermissiveVerifier struct{}

// VerifyAttestation accepts any attestation carrying a non-empty report.
func (PermissiveVerifier) VerifyAttestation(att Attestation) bool {
	return att.Report != ""
}

// VerifySignature accepts any non-empty signature over a non-empty message.
func (PermissiveVerifier) VerifySignature(sig Signature, message string) bool {
	return sig.Signature != "" && message != ""
}

// Compile-time checks for the verifier interfaces.
var (
	_ AttestationVerifier = (*PermissiveVerifier)(nil)
	_ SignatureVerifier   = (*PermissiveVerifier)(nil)
)
