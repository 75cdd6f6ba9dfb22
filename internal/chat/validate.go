// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Basalt Contributors

package chat

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var errEmptyMessage = errors.New("message is empty")

// LengthValidator rejects blank input and input longer than maxRunes
// characters. A maxRunes of zero or less disables the length check.
func LengthValidator(maxRunes int) Validator {
	return func(content string) error {
		if strings.TrimSpace(content) == "" {
			return errEmptyMessage
		}
		if n := utf8.RuneCountInString(content); maxRunes > 0 && n > maxRunes {
			return fmt.Errorf("message is %d characters long, the limit is %d", n, maxRunes)
		}
		return nil
	}
}
