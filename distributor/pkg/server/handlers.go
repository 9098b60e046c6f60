package server

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"

	"github.com/malbeclabs/merkledrop/distributor/pkg/custody"
	"github.com/malbeclabs/merkledrop/distributor/pkg/drop"
)

// ErrorResponse carries a stable error code plus an optional
// human-readable message. Engine failures put the distribution error
// code in Error; transport failures use the codes "invalid_request",
// "unauthorized", "signer_mismatch", "insufficient_funds", and
// "internal_error".
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// DistributionResponse is the wire form of a distribution record.
// Principals are base58; the root is hex, empty until a commitment is
// published.
type DistributionResponse struct {
	Address           string `json:"address"`
	Creator           string `json:"creator"`
	Operator          string `json:"operator"`
	Asset             string `json:"asset"`
	Pool              string `json:"pool"`
	Seq               uint32 `json:"seq"`
	InitialPoolAmount uint64 `json:"initial_pool_amount"`
	Released          uint64 `json:"released"`
	StartTS           int64  `json:"start_ts"`
	EndTS             int64  `json:"end_ts"`
	Root              string `json:"root,omitempty"`
	Rent              uint64 `json:"rent"`
}

func newDistributionResponse(d drop.Distribution) DistributionResponse {
	resp := DistributionResponse{
		Address:           d.Address.String(),
		Creator:           d.Creator.String(),
		Operator:          d.Operator.String(),
		Asset:             d.Asset.String(),
		Pool:              d.Pool.String(),
		Seq:               d.Seq,
		InitialPoolAmount: d.InitialPoolAmount,
		Released:          d.Released,
		StartTS:           d.StartTS,
		EndTS:             d.EndTS,
		Rent:              d.Rent,
	}
	if d.HasCommitment() {
		resp.Root = hex.EncodeToString(d.Root[:])
	}
	return resp
}

type OpenRequest struct {
	Operator   string `json:"operator"`
	Asset      string `json:"asset"`
	PoolAmount uint64 `json:"pool_amount"`
}

type SetWindowRequest struct {
	StartTS int64 `json:"start_ts"`
}

type SetWindowResponse struct {
	StartTS int64 `json:"start_ts"`
	EndTS   int64 `json:"end_ts"`
}

type SetCommitmentRequest struct {
	Root string `json:"root"`
}

type SetCommitmentResponse struct {
	Root string `json:"root"`
}

type ClaimRequest struct {
	Ceiling uint64   `json:"ceiling"`
	Proof   []string `json:"proof"`
}

type ClaimResponse struct {
	Amount  uint64 `json:"amount"`
	Ceiling uint64 `json:"ceiling"`
}

type WithdrawResponse struct {
	Remainder uint64 `json:"remainder"`
}

type CloseClaimResponse struct {
	Reclaimed uint64 `json:"reclaimed"`
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	signer, ok := s.requireSigner(w, r, body)
	if !ok {
		return
	}

	var req OpenRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	operator, err := parseOptionalKey(req.Operator)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "invalid operator")
		return
	}
	asset, err := parseOptionalKey(req.Asset)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "invalid asset")
		return
	}

	dist, err := s.engine.Open(r.Context(), signer, operator, asset, req.PoolAmount)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, newDistributionResponse(dist))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.addressParam(w, r, "address")
	if !ok {
		return
	}

	dist, err := s.engine.Get(r.Context(), addr)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newDistributionResponse(dist))
}

func (s *Server) handleSetWindow(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.addressParam(w, r, "address")
	if !ok {
		return
	}
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	signer, ok := s.requireSigner(w, r, body)
	if !ok {
		return
	}

	var req SetWindowRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	if err := s.engine.SetWindow(r.Context(), signer, addr, req.StartTS); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, SetWindowResponse{
		StartTS: req.StartTS,
		EndTS:   req.StartTS + drop.WindowDuration,
	})
}

func (s *Server) handleSetCommitment(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.addressParam(w, r, "address")
	if !ok {
		return
	}
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	signer, ok := s.requireSigner(w, r, body)
	if !ok {
		return
	}

	var req SetCommitmentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	root, err := parseDigest(req.Root)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "root must be 64 hex characters")
		return
	}

	if err := s.engine.SetCommitment(r.Context(), signer, addr, root); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, SetCommitmentResponse{Root: req.Root})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.addressParam(w, r, "address")
	if !ok {
		return
	}
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	signer, ok := s.requireSigner(w, r, body)
	if !ok {
		return
	}

	var req ClaimRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	proof := make([][32]byte, len(req.Proof))
	for i, p := range req.Proof {
		node, err := parseDigest(p)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("proof[%d] must be 64 hex characters", i))
			return
		}
		proof[i] = node
	}

	amount, err := s.engine.Claim(r.Context(), signer, addr, req.Ceiling, proof)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ClaimResponse{Amount: amount, Ceiling: req.Ceiling})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.addressParam(w, r, "address")
	if !ok {
		return
	}
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	signer, ok := s.requireSigner(w, r, body)
	if !ok {
		return
	}

	remainder, err := s.engine.Withdraw(r.Context(), signer, addr)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, WithdrawResponse{Remainder: remainder})
}

func (s *Server) handleCloseClaim(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.addressParam(w, r, "address")
	if !ok {
		return
	}
	recipient, ok := s.addressParam(w, r, "recipient")
	if !ok {
		return
	}
	signer, ok := s.requireSigner(w, r, nil)
	if !ok {
		return
	}
	// Only the recipient may close their own claim record; the rent
	// refund goes to them.
	if signer != recipient {
		s.writeError(w, http.StatusForbidden, "signer_mismatch", "claim records can only be closed by their recipient")
		return
	}

	reclaimed, err := s.engine.CloseClaim(r.Context(), recipient, addr)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, CloseClaimResponse{Reclaimed: reclaimed})
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "failed to read request body")
		return nil, false
	}
	if len(body) > maxBodyBytes {
		s.writeError(w, http.StatusRequestEntityTooLarge, "invalid_request", "request body too large")
		return nil, false
	}
	return body, true
}

func (s *Server) requireSigner(w http.ResponseWriter, r *http.Request, body []byte) (solana.PublicKey, bool) {
	signer, err := s.verifySignedRequest(r, body)
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return solana.PublicKey{}, false
	}
	return signer, true
}

func (s *Server) addressParam(w http.ResponseWriter, r *http.Request, name string) (solana.PublicKey, bool) {
	key, err := solana.PublicKeyFromBase58(chi.URLParam(r, name))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("invalid %s", name))
		return solana.PublicKey{}, false
	}
	return key, true
}

// parseOptionalKey treats an empty string as the zero key so the engine's
// own validation decides whether that is acceptable.
func parseOptionalKey(value string) (solana.PublicKey, error) {
	if value == "" {
		return solana.PublicKey{}, nil
	}
	return solana.PublicKeyFromBase58(value)
}

func parseDigest(value string) ([32]byte, error) {
	var digest [32]byte
	raw, err := hex.DecodeString(value)
	if err != nil {
		return digest, fmt.Errorf("failed to decode digest: %w", err)
	}
	if len(raw) != len(digest) {
		return digest, fmt.Errorf("invalid digest length: expected %d, got %d", len(digest), len(raw))
	}
	copy(digest[:], raw)
	return digest, nil
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	var derr *drop.Error
	if errors.As(err, &derr) {
		s.writeError(w, statusForKind(derr.Kind), derr.Code, "")
		return
	}
	// The bank reports a creator who cannot cover the pool as a plain
	// sentinel rather than a distribution error.
	if errors.Is(err, custody.ErrInsufficientFunds) {
		s.writeError(w, http.StatusConflict, "insufficient_funds", "")
		return
	}
	s.log.Error("request failed", "error", err)
	s.writeError(w, http.StatusInternalServerError, "internal_error", "")
}

func statusForKind(kind drop.Kind) int {
	switch kind {
	case drop.KindAccessDenied:
		return http.StatusForbidden
	case drop.KindNotFound:
		return http.StatusNotFound
	case drop.KindValidation:
		return http.StatusBadRequest
	case drop.KindState, drop.KindResource:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}
