package appfs

import "embed"

// FS holds the SQL migrations and the templates shipped inside the binaries.
//
//go:embed migrations/*.sql all:assets
var FS embed.FS
