package webhook

import "errors"

var (
	ErrDeliveryFailed    = errors.New("webhook delivery failed")
	ErrPermanentFailure  = errors.New("permanent webhook failure")
	ErrTemporaryFailure  = errors.New("temporary webhook failure")
	ErrInvalidURL        = errors.New("invalid webhook URL")
	ErrInvalidPayload    = errors.New("invalid webhook payload")
	ErrInvalidSignature  = errors.New("invalid webhook signature")
	ErrSignatureExpired  = errors.New("webhook signature outside replay window")
	ErrSignatureRequired = errors.New("webhook signature headers missing")
)
