// Package handlers defines the HTTP error codes returned in the error
// envelope. Clients branch on the code, not the message.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "insufficient_credits",
//	  "message": "not enough credits for this operation"
//	}
package handlers

const (
	ErrCodeBadRequest = "bad_request"
	ErrCodeForbidden  = "forbidden"
	ErrCodeNotFound   = "not_found"
	ErrCodeConflict   = "conflict"

	// Metering:
	ErrCodeUnknownOperation    = "unknown_operation"
	ErrCodeMissingInput        = "missing_input"
	ErrCodeInsufficientCredits = "insufficient_credits"
	ErrCodeInvalidQuantity     = "invalid_quantity"
	ErrCodeInvalidMetadata     = "invalid_metadata"
	ErrCodeUnknownPack         = "unknown_pack"
	ErrCodeJobFinalized        = "job_finalized"
	ErrCodeDuplicateReference  = "duplicate_reference"
	ErrCodeNotRefundable       = "not_refundable"
	ErrCodeOperationFailed     = "operation_failed"
	ErrCodeMethodNotAllowed    = "method_not_allowed"
)
