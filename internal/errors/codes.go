package errors

// ErrorCode represents a machine-readable error identifier for frontend error handling.
type ErrorCode string

// Request validation errors
const (
	ErrCodeMissingField  ErrorCode = "missing_field"
	ErrCodeInvalidField  ErrorCode = "invalid_field"
	ErrCodeInvalidAmount ErrorCode = "invalid_amount"
	ErrCodeInvalidWallet ErrorCode = "invalid_wallet"
	ErrCodeInvalidBody   ErrorCode = "invalid_body"
)

// Webhook processing errors
const (
	ErrCodeInvalidNotification ErrorCode = "invalid_notification"
	ErrCodeMissingSignature    ErrorCode = "missing_signature"
	ErrCodeUnauthorized        ErrorCode = "unauthorized"
)

// Minting and transaction errors
const (
	ErrCodeMintFailed              ErrorCode = "mint_failed"
	ErrCodeTransactionNotConfirmed ErrorCode = "transaction_not_confirmed"
	ErrCodeTransactionFailed       ErrorCode = "transaction_failed"
	ErrCodeBlockhashUnavailable    ErrorCode = "blockhash_unavailable"
)

// Rate limiting
const (
	ErrCodeRateLimited ErrorCode = "rate_limited"
)

// External service errors (RPC, faucet, search upstream)
const (
	ErrCodeRPCError           ErrorCode = "rpc_error"
	ErrCodeFaucetError        ErrorCode = "faucet_error"
	ErrCodeSearchError        ErrorCode = "search_error"
	ErrCodeNetworkError       ErrorCode = "network_error"
	ErrCodeServiceUnavailable ErrorCode = "service_unavailable"
)

// Internal/system errors
const (
	ErrCodeInternalError ErrorCode = "internal_error"
	ErrCodeDatabaseError ErrorCode = "database_error"
	ErrCodeConfigError   ErrorCode = "config_error"
)

// IsRetryable returns whether an error code represents a retryable error.
// Retryable errors are typically transient network/service issues, not validation failures.
func (e ErrorCode) IsRetryable() bool {
	switch e {
	case ErrCodeRPCError,
		ErrCodeFaucetError,
		ErrCodeSearchError,
		ErrCodeNetworkError,
		ErrCodeServiceUnavailable,
		ErrCodeBlockhashUnavailable,
		ErrCodeTransactionNotConfirmed:
		return true

	default:
		return false
	}
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e ErrorCode) HTTPStatus() int {
	switch e {
	// 400 Bad Request - Client validation errors
	case ErrCodeMissingField,
		ErrCodeInvalidField,
		ErrCodeInvalidAmount,
		ErrCodeInvalidWallet,
		ErrCodeInvalidBody,
		ErrCodeInvalidNotification,
		ErrCodeMissingSignature:
		return 400

	// 401 Unauthorized - Missing or bad webhook credentials
	case ErrCodeUnauthorized:
		return 401

	// 429 Too Many Requests
	case ErrCodeRateLimited:
		return 429

	// 502 Bad Gateway - External service errors
	case ErrCodeRPCError,
		ErrCodeFaucetError,
		ErrCodeSearchError,
		ErrCodeNetworkError,
		ErrCodeBlockhashUnavailable:
		return 502

	// 503 Service Unavailable - Circuit breaker open
	case ErrCodeServiceUnavailable:
		return 503

	// 500 Internal Server Error - System/internal errors
	default:
		return 500
	}
}
