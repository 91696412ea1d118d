package relay

import (
	"context"
	"fmt"

	authpkg "github.com/consortium/relay/internal/auth"
	"github.com/consortium/relay/internal/db"
)

// Authenticate verifies an Ed25519 challenge signature and returns a
// token for the upserted account (§4.4 POST /v1/auth).
func (s *Service) Authenticate(ctx context.Context, publicKeyB64, challengeB64, signatureB64 string) (token string, account *db.Account, err error) {
	publicKeyHex, err := authpkg.VerifyChallenge(publicKeyB64, challengeB64, signatureB64)
	if err != nil {
		return "", nil, err
	}

	acct, err := s.Store.GetOrCreateAccount(ctx, publicKeyHex)
	if err != nil {
		return "", nil, fmt.Errorf("failed to upsert account: %w", err)
	}

	tok, err := s.Tokens.Create(acct.ID, nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return tok, acct, nil
}

// PairingState is the response to a pairing poll (§4.4 POST
// /v1/auth/account/request).
type PairingState struct {
	State    string `json:"state"`
	Token    string `json:"token,omitempty"`
	Response string `json:"response,omitempty"`
}

// RequestPairing upserts a PairingRequest keyed by the ephemeral public
// key and reports whether it has been authorized yet.
func (s *Service) RequestPairing(ctx context.Context, publicKeyB64 string) (*PairingState, error) {
	publicKeyHex, err := authpkg.DecodePairingPublicKey(publicKeyB64)
	if err != nil {
		return nil, err
	}

	req, err := s.Store.GetOrCreatePairingRequest(ctx, publicKeyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert pairing request: %w", err)
	}

	if req.Response == nil || req.ResponseAccountID == nil {
		return &PairingState{State: "requested"}, nil
	}

	tok, err := s.Tokens.Create(*req.ResponseAccountID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &PairingState{State: "authorized", Token: tok, Response: *req.Response}, nil
}

// RespondPairing writes the authenticated side's response to a pending
// pairing request, a no-op if already answered (§4.4 POST
// /v1/auth/account/response).
func (s *Service) RespondPairing(ctx context.Context, accountID, publicKeyB64, response string) error {
	publicKeyHex, err := authpkg.DecodePairingPublicKey(publicKeyB64)
	if err != nil {
		return err
	}
	return s.Store.SetPairingResponse(ctx, publicKeyHex, response, accountID)
}
