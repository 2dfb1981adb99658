package enums

// CreationState tracks progress through the listing creation workflow.
type CreationState string

const (
	CreationStateExtracting       CreationState = "extracting"
	CreationStatePricing          CreationState = "pricing"
	CreationStateVerifying        CreationState = "verifying"
	CreationStateIdempotencyCheck CreationState = "idempotency_check"
	CreationStateAnalyzing        CreationState = "analyzing"
	CreationStatePersisting       CreationState = "persisting"
	CreationStateIndexing         CreationState = "indexing"
	CreationStateDone             CreationState = "done"
	CreationStateRejected         CreationState = "rejected"
)

// String implements fmt.Stringer.
func (c CreationState) String() string {
	return string(c)
}

// IsTerminal reports whether no further step runs after this state.
func (c CreationState) IsTerminal() bool {
	return c == CreationStateDone || c == CreationStateRejected
}

// RejectionReason names why a creation attempt stopped before persisting.
type RejectionReason string

const (
	RejectionPayerExtractionFailed RejectionReason = "payer_extraction_failed"
	RejectionInvalidDuration       RejectionReason = "invalid_duration"
	RejectionPaymentInvalid        RejectionReason = "payment_invalid"
	RejectionAnalysisFailed        RejectionReason = "analysis_failed"
	RejectionPersistenceFailed     RejectionReason = "persistence_failed"
	RejectionPaymentRevoked        RejectionReason = "payment_revoked"
)
