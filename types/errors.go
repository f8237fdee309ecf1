package types

// Wire-level error codes. The join codes keep the historical client-facing
// spellings, the rest are named after what went wrong.
const (
	ErrCodeRoomDoesNotExist = "does_not_exist"
	ErrCodeAlreadyJoined    = "already_joined"
	ErrCodeRoomFull         = "already_full"

	ErrCodeRoomNotFound     = "room_not_found"
	ErrCodePluginNotFound   = "plugin_not_found_in_db"
	ErrCodePermissionDenied = "permission_denied"
	ErrCodeUserNotFound     = "user_not_found"

	ErrCodeMissingDisplayName  = "missing_display_name"
	ErrCodeDisplayNameTooShort = "display_name_too_short"
	ErrCodeDisplayNameTooLong  = "display_name_too_long"

	ErrCodeBadRequest         = "bad_request"
	ErrCodeUnknownRequestType = "unknown_request_type"

	ErrCodeRelayNoReceivers          = "relay_no_receivers"
	ErrCodeRelayNotInRoom            = "relay_not_in_room"
	ErrCodeRelayReceiversUnavailable = "relay_receivers_unavailable"
)
