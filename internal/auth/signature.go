package auth

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// VerifyChallenge checks the Ed25519 signature of a challenge against a
// base64-encoded public key (§4.4 POST /v1/auth). Returns the
// hex-encoded public key (the account lookup/creation key, §3) on
// success.
//
// crypto/ed25519 is used directly: it's the ecosystem-standard Ed25519
// implementation, and no third-party library in the pack supersedes it.
func VerifyChallenge(publicKeyB64, challengeB64, signatureB64 string) (string, error) {
	publicKey, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil {
		return "", fmt.Errorf("invalid public key encoding: %w", err)
	}
	if len(publicKey) != ed25519.PublicKeySize {
		return "", fmt.Errorf("invalid public key length: got %d, want %d", len(publicKey), ed25519.PublicKeySize)
	}

	challenge, err := base64.StdEncoding.DecodeString(challengeB64)
	if err != nil {
		return "", fmt.Errorf("invalid challenge encoding: %w", err)
	}

	signature, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return "", fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(signature) != ed25519.SignatureSize {
		return "", fmt.Errorf("invalid signature length: got %d, want %d", len(signature), ed25519.SignatureSize)
	}

	if !ed25519.Verify(ed25519.PublicKey(publicKey), challenge, signature) {
		return "", fmt.Errorf("signature verification failed")
	}

	return hex.EncodeToString(publicKey), nil
}

// DecodePairingPublicKey decodes and validates a pairing request's
// ephemeral public key, which must be exactly 32 bytes (§4.4 POST
// /v1/auth/account/request: "must be 32 bytes"). Returns its hex
// encoding, the pairing-request lookup key (§3).
func DecodePairingPublicKey(publicKeyB64 string) (string, error) {
	publicKey, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil {
		return "", fmt.Errorf("invalid public key encoding: %w", err)
	}
	if len(publicKey) != ed25519.PublicKeySize {
		return "", fmt.Errorf("invalid public key length: got %d, want %d", len(publicKey), ed25519.PublicKeySize)
	}
	return hex.EncodeToString(publicKey), nil
}
