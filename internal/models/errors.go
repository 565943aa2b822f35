package models

import "errors"

var ErrNotFound = errors.New("requested resource not found")
var ErrInvalidInput = errors.New("invalid or missing request data")
var ErrForbidden = errors.New("user does not have permission to access this resource")
var ErrPermissionDenied = errors.New("actor does not match the bound delivery person")

// ErrNotAvailable signals a lost acceptance race: the order was already taken,
// is not Cooked, or is not a Delivery order. Not a server fault.
var ErrNotAvailable = errors.New("order is no longer available for delivery")

var ErrInvalidTransition = errors.New("order status cannot move backward")
var ErrInvalidCode = errors.New("verification code does not match")
var ErrAlreadyPickedUp = errors.New("order has already been picked up")

var ErrUpstreamUnavailable = errors.New("upstream service did not return a usable response")
var ErrPaymentInit = errors.New("payment initialization failed")
var ErrPaymentVerificationFailed = errors.New("payment could not be verified with the gateway")

// ErrAlreadyProcessed marks a duplicate payment callback. Webhook handlers
// treat it as success so gateway retries stay idempotent.
var ErrAlreadyProcessed = errors.New("transaction already processed")

// ErrCodeCollision means a freshly generated order code hit the unique index.
// Callers regenerate and retry a bounded number of times.
var ErrCodeCollision = errors.New("generated order code already exists")
