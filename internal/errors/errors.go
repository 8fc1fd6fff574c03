package errors

import (
	"errors"
)

// UserError represents an error with both technical and user-friendly messages
type UserError struct {
	Err       error
	UserMsg   string
	Retryable bool
}

func (e *UserError) Error() string {
	return e.Err.Error()
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// Access errors
var (
	ErrBanned = &UserError{
		Err:       errors.New("user is banned"),
		UserMsg:   "You have been banned from using this bot.",
		Retryable: false,
	}

	ErrNotSubscribed = &UserError{
		Err:       errors.New("user is not a member of the required channel"),
		UserMsg:   "Please join our channel to use this bot, then press \"I've joined\".",
		Retryable: false,
	}

	ErrUnauthorized = &UserError{
		Err:       errors.New("unauthorized user"),
		UserMsg:   "Sorry, this command is only available to administrators.",
		Retryable: false,
	}

	ErrRateLimited = &UserError{
		Err:       errors.New("rate limited"),
		UserMsg:   "You are sending requests too quickly. Please slow down.",
		Retryable: false,
	}
)

// Session and input errors
var (
	ErrNoPendingUpload = &UserError{
		Err:       errors.New("no pending upload"),
		UserMsg:   "⚠️ There is no pending upload. Send me an image first.",
		Retryable: false,
	}

	ErrInvalidTransition = &UserError{
		Err:       errors.New("invalid session transition"),
		UserMsg:   "⚠️ That action is not available right now.",
		Retryable: false,
	}

	ErrPublishInProgress = &UserError{
		Err:       errors.New("publish already in progress"),
		UserMsg:   "Your image is already being uploaded. Please wait for it to complete.",
		Retryable: false,
	}

	ErrInvalidTime = &UserError{
		Err:       errors.New("invalid date/time"),
		UserMsg:   "❌ Invalid date/time. Use the format YYYY-MM-DD HH:MM, for example 2030-01-01 10:00.",
		Retryable: false,
	}

	ErrPastTime = &UserError{
		Err:       errors.New("date/time is not in the future"),
		UserMsg:   "❌ That time is in the past. Please send a future date/time.",
		Retryable: false,
	}

	ErrInvalidArgs = &UserError{
		Err:       errors.New("invalid arguments"),
		UserMsg:   "❌ Invalid arguments.",
		Retryable: false,
	}

	ErrInvalidToken = &UserError{
		Err:       errors.New("invalid recovery token"),
		UserMsg:   "❌ This token is invalid or has already been used.",
		Retryable: false,
	}

	ErrAdminTarget = &UserError{
		Err:       errors.New("administrators cannot be banned"),
		UserMsg:   "❌ Administrators cannot be banned.",
		Retryable: false,
	}
)

// Publish pipeline errors
var (
	ErrFetchFailed = &UserError{
		Err:       errors.New("failed to fetch source image"),
		UserMsg:   "❌ Failed to upload your image.",
		Retryable: true,
	}

	ErrTransformFailed = &UserError{
		Err:       errors.New("failed to transform image"),
		UserMsg:   "❌ This image could not be processed. Try a smaller image.",
		Retryable: false,
	}

	ErrUploadFailed = &UserError{
		Err:       errors.New("image hosting upload failed"),
		UserMsg:   "❌ Failed to upload your image.",
		Retryable: true,
	}

	ErrMalformedUploadResponse = &UserError{
		Err:       errors.New("malformed upload response"),
		UserMsg:   "❌ Failed to upload your image. The hosting service returned an unexpected response.",
		Retryable: false,
	}

	ErrPersistFailed = &UserError{
		Err:       errors.New("failed to persist state"),
		UserMsg:   "❌ Could not save changes.",
		Retryable: true,
	}
)

// RetryHint is appended to the message of retryable errors.
const RetryHint = "Please try again in a moment."

// GetUserMessage extracts user-friendly message from error
func GetUserMessage(err error) string {
	var userErr *UserError
	if errors.As(err, &userErr) {
		if userErr.Retryable {
			return userErr.UserMsg + " " + RetryHint
		}
		return userErr.UserMsg
	}
	// Default message for unexpected errors
	return "An unexpected error occurred. Please try again later."
}

// IsRetryable checks if an error can be retried
func IsRetryable(err error) bool {
	var userErr *UserError
	if errors.As(err, &userErr) {
		return userErr.Retryable
	}
	return false
}
