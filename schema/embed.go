package schema

import _ "embed"

// JobV1Schema contains the JSON schema for job manifests.
//
//go:embed job.v1.json
var JobV1Schema []byte
