package templates

import "embed"

// EmailFS contains the html/template sources for outgoing mail.
//
//go:embed email/*.html
var EmailFS embed.FS
