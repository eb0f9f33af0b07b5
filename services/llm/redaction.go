// Copyright (C) 2025 Waypoint AI (oss@waypointai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"regexp"
)

// redactionPattern pairs a compiled regex with a replacement label.
//
// Description:
//
//	Each pattern identifies a specific class of sensitive value (API key,
//	token, personal identifier) and provides a labeled replacement string so
//	the log reader knows what was redacted without seeing the value.
//
// Thread Safety: This type is immutable after construction.
type redactionPattern struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// redactionPatterns is the ordered list of sensitive-value patterns.
//
// IMPORTANT: Order matters. More specific patterns (e.g., sk-ant-api03-)
// must appear BEFORE less specific patterns (e.g., sk-) to prevent
// partial redaction.
//
// Thread Safety: This slice is initialized once and never modified.
// All access is read-only.
var redactionPatterns = []redactionPattern{
	// Anthropic API key: sk-ant-api03-<base62>
	// Must be before the generic sk- pattern.
	{
		Pattern:     regexp.MustCompile(`sk-ant-api03-[A-Za-z0-9_-]{20,}`),
		Replacement: "[REDACTED:anthropic_key]",
	},
	// Generic sk- API key (20+ chars to avoid matching short strings).
	{
		Pattern:     regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
		Replacement: "[REDACTED:api_key]",
	},
	// Bearer token in Authorization header values
	{
		Pattern:     regexp.MustCompile(`Bearer\s+[A-Za-z0-9._-]{10,}`),
		Replacement: "[REDACTED:bearer_token]",
	},
	// Email addresses. Request text is personal; addresses must never land
	// in logs even inside quoted snippets.
	{
		Pattern:     regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
		Replacement: "[REDACTED:email]",
	},
	// US-style phone numbers: optional +1, separators, 10 digits.
	{
		Pattern:     regexp.MustCompile(`(\+1[\s.-]?)?\(?\d{3}\)?[\s.-]\d{3}[\s.-]\d{4}`),
		Replacement: "[REDACTED:phone]",
	},
	// US Social Security numbers: 3-2-4 with separators.
	{
		Pattern:     regexp.MustCompile(`\b\d{3}[-\s]\d{2}[-\s]\d{4}\b`),
		Replacement: "[REDACTED:ssn]",
	},
	// Password in connection strings or config: password=<value>
	{
		Pattern:     regexp.MustCompile(`password=[^\s&]{3,}`),
		Replacement: "password=[REDACTED]",
	},
}

// SafeLogString redacts known sensitive patterns from a string before
// logging.
//
// Description:
//
//	Iterates through a predefined set of regex patterns matching API key
//	formats, bearer tokens, and personal identifiers (emails, phone numbers,
//	SSNs). Each match is replaced with a labeled placeholder so the log
//	reader knows what class of value was present without seeing it.
//
// Inputs:
//   - s: The string to redact. Empty string is valid and returns empty.
//
// Outputs:
//   - string: The input with all matched patterns replaced. If nothing
//     matches, the original string is returned unchanged.
//
// Limitations:
//   - Pattern-based detection only; free-text personal details (names,
//     addresses) are not caught. Callers must still avoid logging raw
//     request text.
//   - A value spanning multiple lines will not be matched.
//
// Thread Safety: This function is safe for concurrent use.
func SafeLogString(s string) string {
	if s == "" {
		return s
	}
	for _, p := range redactionPatterns {
		s = p.Pattern.ReplaceAllString(s, p.Replacement)
	}
	return s
}

// RedactIdentifiers scrubs the same pattern set from text that is about to
// leave the process in a model prompt. The extractor and the advisor workers
// run every outbound request text through this before egress; the labeled
// placeholders give the model enough signal ("there was a phone number here")
// without shipping the value.
//
// Thread Safety: This function is safe for concurrent use.
func RedactIdentifiers(s string) string {
	return SafeLogString(s)
}
