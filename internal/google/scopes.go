package google

import gmail "google.golang.org/api/gmail/v1"

// DefaultScopes are requested by the interactive authorization flow.
var DefaultScopes = []string{
	gmail.GmailReadonlyScope,
	gmail.GmailModifyScope,
	gmail.GmailSendScope,
}
