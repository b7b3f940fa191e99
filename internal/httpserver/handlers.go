package httpserver

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/coderomm/Xolana/internal/airdrop"
	apierrors "github.com/coderomm/Xolana/internal/errors"
	"github.com/coderomm/Xolana/internal/search"
	"github.com/coderomm/Xolana/internal/stake"
	"github.com/coderomm/Xolana/pkg/responders"
)

const (
	// maxWebhookBodyBytes caps inbound notification payloads. Helius
	// enhanced-transaction payloads are a few KB; 1MB is generous.
	maxWebhookBodyBytes = 1 << 20

	// maxSearchBodyBytes caps relayed search queries.
	maxSearchBodyBytes = 64 << 10
)

// root is the liveness stub. The response body is a frontend contract and
// must stay as-is.
// GET /
func (h *handlers) root(w http.ResponseWriter, r *http.Request) {
	responders.JSON(w, http.StatusOK, map[string]string{
		"message": "Airdrop successful",
	})
}

// health reports basic service status for load balancer checks.
// GET /health
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	responders.JSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"network":        h.cfg.Solana.Network,
		"storage":        h.cfg.Storage.Backend,
		"uptime_seconds": int(time.Since(serverStartTime).Seconds()),
	})
}

// heliusWebhook handles inbound transaction notifications. Deposits into the
// staking pool mint reward tokens to the sender; everything else is
// acknowledged with 200 so the webhook provider does not retry.
// POST /helius
func (h *handlers) heliusWebhook(w http.ResponseWriter, r *http.Request) {
	if !h.authorizeWebhook(r) {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeUnauthorized, "Invalid or missing webhook credentials")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidBody, "Failed to read request body")
		return
	}
	defer r.Body.Close()

	notification, err := stake.ParseNotification(body)
	if err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidNotification, "Invalid transaction notification payload")
		return
	}

	result, err := h.stake.ProcessNotification(r.Context(), notification)
	if err != nil {
		h.writeWebhookError(w, err)
		return
	}

	switch result.Outcome {
	case stake.OutcomeIgnored:
		responders.JSON(w, http.StatusOK, map[string]string{
			"message": "Not a stake transaction",
		})
	case stake.OutcomeReplayed:
		responders.JSON(w, http.StatusOK, map[string]string{
			"message": "Stake already processed",
		})
	default:
		responders.JSON(w, http.StatusOK, map[string]string{
			"message":   "Stake processed successfully",
			"signature": result.MintSignature,
		})
	}
}

// authorizeWebhook checks the optional shared-token webhook auth. An empty
// configured token leaves the endpoint open, matching the original contract.
func (h *handlers) authorizeWebhook(r *http.Request) bool {
	token := h.cfg.Webhook.AuthToken
	if token == "" {
		return true
	}
	header := r.Header.Get("Authorization")
	return subtle.ConstantTimeCompare([]byte(header), []byte(token)) == 1
}

func (h *handlers) writeWebhookError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, stake.ErrMissingSignature):
		apierrors.WriteSimpleError(w, apierrors.ErrCodeMissingSignature, "Notification has no transaction signature")
	case errors.Is(err, stake.ErrInvalidWallet):
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidWallet, "Staker wallet address is not a valid public key")
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		apierrors.WriteSimpleError(w, apierrors.ErrCodeServiceUnavailable, "Solana RPC is temporarily unavailable")
	default:
		apierrors.WriteSimpleError(w, apierrors.ErrCodeMintFailed, "Failed to mint reward tokens")
	}
}

// prepareStakeRequest is the POST /stake request body.
type prepareStakeRequest struct {
	SenderPublicKey string  `json:"senderPublicKey"`
	Amount          float64 `json:"amount"` // whole SOL
}

// prepareStake builds an unsigned SOL transfer into the staking pool and
// returns it base64-encoded for client-side signing.
// POST /stake
func (h *handlers) prepareStake(w http.ResponseWriter, r *http.Request) {
	var req prepareStakeRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidBody, "Invalid request format")
		return
	}
	if req.SenderPublicKey == "" {
		apierrors.WriteErrorWithDetail(w, apierrors.ErrCodeMissingField, "senderPublicKey is required", "field", "senderPublicKey")
		return
	}

	prepared, err := h.stake.PrepareStake(r.Context(), req.SenderPublicKey, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, stake.ErrInvalidWallet):
			apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidWallet, "senderPublicKey is not a valid public key")
		case errors.Is(err, stake.ErrInvalidAmount):
			apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidAmount, "amount must be a positive number of SOL")
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			apierrors.WriteSimpleError(w, apierrors.ErrCodeServiceUnavailable, "Solana RPC is temporarily unavailable")
		default:
			// The only chain call here is the blockhash fetch
			apierrors.WriteSimpleError(w, apierrors.ErrCodeBlockhashUnavailable, "Failed to fetch a recent blockhash")
		}
		return
	}

	responders.JSON(w, http.StatusOK, map[string]any{
		"transaction": prepared.TransactionBase64,
		"lamports":    prepared.Lamports,
		"message":     "Transaction created successfully",
	})
}

// airdropRequest is the POST /request-airdrop request body.
type airdropRequest struct {
	PublicKey string `json:"publicKey"`
}

// requestAirdrop proxies the devnet faucet for the configured amount.
// POST /request-airdrop
func (h *handlers) requestAirdrop(w http.ResponseWriter, r *http.Request) {
	var req airdropRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidBody, "Invalid request format")
		return
	}

	signature, err := h.airdrop.Request(r.Context(), req.PublicKey)
	if err != nil {
		switch {
		case errors.Is(err, airdrop.ErrInvalidWallet):
			apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidWallet, "publicKey is not a valid public key")
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			apierrors.WriteSimpleError(w, apierrors.ErrCodeServiceUnavailable, "Faucet is temporarily unavailable")
		case errors.Is(err, airdrop.ErrFaucet):
			apierrors.WriteSimpleError(w, apierrors.ErrCodeFaucetError, "Faucet request failed")
		default:
			apierrors.WriteSimpleError(w, apierrors.ErrCodeInternalError, "Airdrop request failed")
		}
		return
	}

	responders.JSON(w, http.StatusOK, map[string]string{
		"message":   "Airdrop successful",
		"signature": signature,
	})
}

// searchProxy relays token-search queries to the upstream aggregator and
// passes the response through verbatim.
// POST /proxy
func (h *handlers) searchProxy(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSearchBodyBytes))
	if err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidBody, "Failed to read request body")
		return
	}
	defer r.Body.Close()

	response, err := h.search.Relay(r.Context(), body)
	if err != nil {
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			apierrors.WriteSimpleError(w, apierrors.ErrCodeServiceUnavailable, "Search upstream is temporarily unavailable")
		case errors.Is(err, search.ErrUpstream):
			apierrors.WriteSimpleError(w, apierrors.ErrCodeSearchError, "Search upstream request failed")
		default:
			apierrors.WriteSimpleError(w, apierrors.ErrCodeInternalError, "Search request failed")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(response)
}
