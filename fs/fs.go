package appfs

import "embed"

// FS holds the sql migrations and the email templates.
//go:embed migrations templates
var FS embed.FS
