package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Account errors
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailAlreadyExists = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrIncorrectPassword  = errors.New("incorrect password")
	ErrInvalidEmail       = errors.New("invalid email format")
	ErrPasswordTooShort   = errors.New("password is too short")
	ErrCaptchaInvalid     = errors.New("captcha verification failed")
	ErrUnauthorized       = errors.New("unauthorized")

	// Contact errors
	ErrContactNotFound = errors.New("contact not found")
	ErrDuplicatePhone  = errors.New("a contact with this phone already exists")

	// Import errors
	ErrInvalidFormat    = errors.New("invalid file format")
	ErrTooManyRows      = errors.New("file has too many rows")
	ErrReferenceMissing = errors.New("external reference is required")

	// Campaign errors
	ErrCampaignNotFound  = errors.New("campaign not found")
	ErrMediaNotFound     = errors.New("media file not found")
	ErrInvalidTransition = errors.New("campaign status does not allow this operation")
	ErrNoRecipients      = errors.New("campaign has no recipients")
	ErrMissingCredential = errors.New("required credential is not configured")
	ErrUnsupportedType   = errors.New("file type not allowed")
	ErrMediaTooLarge     = errors.New("file exceeds the maximum size")
	ErrNotPreviewable    = errors.New("media file has no preview")
	ErrDispatchFailed    = errors.New("message dispatch failed")
	ErrDispatchInFlight  = errors.New("campaign dispatch already in progress")
	ErrInvalidStatus     = errors.New("invalid status value")

	// Automation
	ErrWebhookVerification = errors.New("webhook verification failed")

	// Generic
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("resource not found")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsUserNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

func IsEmailAlreadyExists(err error) bool {
	return errors.Is(err, ErrEmailAlreadyExists)
}

func IsInvalidCredentials(err error) bool {
	return errors.Is(err, ErrInvalidCredentials)
}

func IsIncorrectPassword(err error) bool {
	return errors.Is(err, ErrIncorrectPassword)
}

func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

func IsCaptchaInvalid(err error) bool {
	return errors.Is(err, ErrCaptchaInvalid)
}

func IsContactNotFound(err error) bool {
	return errors.Is(err, ErrContactNotFound)
}

func IsDuplicatePhone(err error) bool {
	return errors.Is(err, ErrDuplicatePhone)
}

func IsInvalidFormat(err error) bool {
	return errors.Is(err, ErrInvalidFormat)
}

func IsCampaignNotFound(err error) bool {
	return errors.Is(err, ErrCampaignNotFound)
}

func IsMediaNotFound(err error) bool {
	return errors.Is(err, ErrMediaNotFound)
}

func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

func IsNoRecipients(err error) bool {
	return errors.Is(err, ErrNoRecipients)
}

func IsMissingCredential(err error) bool {
	return errors.Is(err, ErrMissingCredential)
}

func IsUnsupportedType(err error) bool {
	return errors.Is(err, ErrUnsupportedType)
}

func IsDispatchFailed(err error) bool {
	return errors.Is(err, ErrDispatchFailed)
}

func IsDispatchInFlight(err error) bool {
	return errors.Is(err, ErrDispatchInFlight)
}

func IsWebhookVerification(err error) bool {
	return errors.Is(err, ErrWebhookVerification)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound reports any of the not-found sentinels
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		IsUserNotFound(err) ||
		IsContactNotFound(err) ||
		IsCampaignNotFound(err) ||
		IsMediaNotFound(err)
}

// ErrorCode returns the machine code of the outermost BusinessError
func ErrorCode(err error) string {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}
