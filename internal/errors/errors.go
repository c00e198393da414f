// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrAlreadyProcessed is returned when an idempotency key already exists.
	ErrAlreadyProcessed = errors.New("already processed")
	// ErrScanInProgress is returned when another run of the same scan holds the lock.
	ErrScanInProgress   = errors.New("scan already in progress")
	ErrUnauthorized     = errors.New("unauthorized")
)

// ValidationError rejects an inbound payload before any state is written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("missing required field: %s", e.Field)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewMissingField(field string) error {
	return &ValidationError{Field: field}
}

func NewInvalidField(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// ErrCampaignNotFound is returned when a campaign id does not resolve
type ErrCampaignNotFound struct {
	CampaignID uuid.UUID
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %s not found", e.CampaignID)
}

func NewCampaignNotFound(id uuid.UUID) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

type ErrAutomationNotFound struct {
	AutomationID uuid.UUID
}

func (e *ErrAutomationNotFound) Error() string {
	return fmt.Sprintf("automation with ID %s not found", e.AutomationID)
}

func NewAutomationNotFound(id uuid.UUID) error {
	return &ErrAutomationNotFound{AutomationID: id}
}

type ErrEmailLogNotFound struct {
	Email      string
	CampaignID string
}

func (e *ErrEmailLogNotFound) Error() string {
	return fmt.Sprintf("email log for %s in campaign %s not found", e.Email, e.CampaignID)
}

func NewEmailLogNotFound(email, campaignID string) error {
	return &ErrEmailLogNotFound{Email: email, CampaignID: campaignID}
}

// IsNotFound reports whether err is one of the typed not-found errors.
func IsNotFound(err error) bool {
	var c *ErrCampaignNotFound
	var a *ErrAutomationNotFound
	var l *ErrEmailLogNotFound
	return errors.As(err, &c) || errors.As(err, &a) || errors.As(err, &l)
}
