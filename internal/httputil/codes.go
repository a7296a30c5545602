package httputil

// Machine-readable error codes returned in the "code" field of error responses
const (
	CodeInvalidRequestBody = "INVALID_REQUEST_BODY"
	CodeRequestTooLarge    = "REQUEST_TOO_LARGE"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeTooManyRequests    = "TOO_MANY_REQUESTS"
	CodeCooldownActive     = "COOLDOWN_ACTIVE"

	// Authentication
	CodeMissingAuth        = "MISSING_AUTH"
	CodeInvalidAuthHeader  = "INVALID_AUTH_HEADER"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"

	// Accounts
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeAlreadyExists      = "ALREADY_EXISTS"
	CodeInvalidOwnerData   = "INVALID_OWNER_DATA"
	CodePasswordTooShort   = "PASSWORD_TOO_SHORT"
	CodeInvalidEmailFormat = "INVALID_EMAIL_FORMAT"

	// One-time codes
	CodeInvalidOTP     = "INVALID_OTP"
	CodeDeliveryFailed = "DELIVERY_FAILED"

	// Properties
	CodePropertyNotFound = "PROPERTY_NOT_FOUND"
	CodeInvalidRent      = "INVALID_RENT"
	CodeInvalidStatus    = "INVALID_STATUS"
	CodeNotOwner         = "NOT_OWNER"
)
