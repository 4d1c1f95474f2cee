package common

import "time"

// AccessTokenHeaderName is the HTTP header used to carry the access token on
// outbound requests.
const AccessTokenHeaderName = "Authorization"

// TypingLivenessWindow is how long a typing indicator row stays meaningful.
// Rows older than this are treated as "not typing" even if not yet deleted.
const TypingLivenessWindow = 10 * time.Second

// MessagePageSize is the default page size for conversation history fetches
// and for the local cache read path.
const MessagePageSize = 50
