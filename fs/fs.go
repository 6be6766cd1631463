package appfs

import "embed"

// FS holds the files shipped inside the binary.
//go:embed migrations/*.sql templates/email/*
var FS embed.FS
