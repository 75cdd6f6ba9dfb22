// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Basalt Contributors

package transcript

import (
	"encoding/json"
	"io"
	"strings"

	basalterr "github.com/basalt-chat/basalt/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Document is the exported form of one session.
type Document struct {
	SessionID string  `json:"session_id" yaml:"session_id"`
	Messages  []Entry `json:"messages" yaml:"messages"`
}

// Export writes the session's entries to w as JSON or YAML.
func Export(w io.Writer, sessionID string, entries []Entry, format string) error {
	doc := Document{SessionID: sessionID, Messages: entries}
	if doc.Messages == nil {
		doc.Messages = []Entry{}
	}

	switch strings.ToLower(format) {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return basalterr.Wrapf(err, basalterr.CodeTranscriptWriteFailure, "encoding transcript as json")
		}
	case FormatYAML, "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return basalterr.Wrapf(err, basalterr.CodeTranscriptWriteFailure, "encoding transcript as yaml")
		}
		if err := enc.Close(); err != nil {
			return basalterr.Wrapf(err, basalterr.CodeTranscriptWriteFailure, "flushing yaml encoder")
		}
	default:
		return basalterr.Errorf(basalterr.CodeTranscriptInvalidInput,
			"unsupported export format %q (want json or yaml)", format)
	}
	return nil
}
