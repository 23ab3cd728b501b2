package schema

import _ "embed"

//go:embed artifactory-fetch-config.schema.json
var ConfigSchema []byte
