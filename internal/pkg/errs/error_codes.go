/*
Package errs provides custom error types and application-level error code constants.

These error codes identify specific business or system errors both inside the
server and on the wire (REST envelopes and websocket "error" events).
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained data after the JSON value.
	ErrExtraContentInBody = 1004

	// ErrRequestEntityTooLarge indicates that the request body exceeded the server limit.
	ErrRequestEntityTooLarge = 1006

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007
)

// 2xxx: Message and Content Errors
const (
	// ErrMessageEmpty indicates a message with neither text nor image.
	ErrMessageEmpty = 2201

	// ErrMessageContentTooLong indicates that the message text exceeded the maximum length.
	ErrMessageContentTooLong = 2202

	// ErrImageInvalid indicates an image reference that is not an allowed image URL or data URL.
	ErrImageInvalid = 2203

	// ErrRecipientInvalid indicates a message addressed to the sender or to an empty id.
	ErrRecipientInvalid = 2204

	// ErrFileSizeTooLarge indicates an upload above the image size limit.
	ErrFileSizeTooLarge = 2301

	// ErrFileTypeInvalid indicates an upload whose name or MIME type is not an allowed image type.
	ErrFileTypeInvalid = 2302
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrUnauthorized indicates a missing, invalid or expired identity token.
	ErrUnauthorized = 3001

	// ErrAlreadyLoggedIn indicates a register/login attempt with a valid identity attached.
	ErrAlreadyLoggedIn = 3002

	// ErrInvalidUsername indicates a username outside the allowed pattern.
	ErrInvalidUsername = 3003

	// ErrInvalidPassword indicates a password outside the allowed length.
	ErrInvalidPassword = 3004

	// ErrInvalidFullName indicates a missing or overlong display name.
	ErrInvalidFullName = 3005

	// ErrUserAlreadyExists indicates a username that is already taken.
	ErrUserAlreadyExists = 3006

	// ErrInvalidCredentials indicates a failed login.
	ErrInvalidCredentials = 3007

	// ErrUserNotFound indicates that the referenced user does not exist.
	ErrUserNotFound = 3008
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrMessagePersistFailed indicates that a message could not be written; it was not delivered.
	ErrMessagePersistFailed = 5001

	// ErrFileStorageFailed indicates an object storage failure.
	ErrFileStorageFailed = 5002

	// ErrStorageDisabled indicates that image storage is not configured on this server.
	ErrStorageDisabled = 5003
)
