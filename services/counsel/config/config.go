// Copyright (C) 2025 Waypoint AI (oss@waypointai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the counsel engine's data-driven lexicons: domain
// classification patterns, the crisis escalation lexicon with its fixed
// resource directory, and the complexity signal phrase tables.
//
// All lexicons are embedded YAML loaded once per process through sync.Once
// singletons. They are immutable after load — updating a lexicon means
// shipping a new configuration and restarting, not mutating in place. Tests
// reset the singletons via the Reset* helpers.
package config

import "go.opentelemetry.io/otel"

// MaxYAMLFileSize bounds lexicon file size to keep a corrupted or malicious
// override from exhausting memory during parse.
const MaxYAMLFileSize = 1 << 20 // 1 MiB

var configTracer = otel.Tracer("waypoint.counsel.config")
