package configs

import "embed"

// ViewerDefaults contains shipped default viewer profile YAML files.
//
//go:embed viewers/*.yaml
var ViewerDefaults embed.FS

// ScriptDefaults contains the startup scripts posted to the viewer after it
// opens.
//
//go:embed scripts/*.fbd
var ScriptDefaults embed.FS
