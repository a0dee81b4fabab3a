// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

package attachments

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"strings"
)

// ErrNotBinary means the provider answered with an error document instead of media.
var ErrNotBinary = errors.New("attachment response is not binary content")

// checkBinary rejects empty bodies, JSON or text responses and bodies that
// look like a JSON or HTML error page.
func checkBinary(data []byte, servedType string) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty body", ErrNotBinary)
	}

	mediaType, _, err := mime.ParseMediaType(servedType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(servedType))
	}
	if mediaType == "application/json" || strings.HasPrefix(mediaType, "text/") {
		return fmt.Errorf("%w: served as %s", ErrNotBinary, mediaType)
	}

	head := bytes.TrimLeft(data[:min(len(data), 64)], " \t\r\n")
	switch {
	case bytes.HasPrefix(head, []byte(`{"`)), bytes.HasPrefix(head, []byte(`[{`)):
		return fmt.Errorf("%w: body is JSON", ErrNotBinary)
	case bytes.HasPrefix(bytes.ToLower(head), []byte("<!doctype html")), bytes.HasPrefix(bytes.ToLower(head), []byte("<html")):
		return fmt.Errorf("%w: body is HTML", ErrNotBinary)
	}
	return nil
}

var magicNumbers = map[string][]byte{
	"image/jpeg":      {0xFF, 0xD8, 0xFF},
	"image/png":       {0x89, 0x50, 0x4E, 0x47},
	"application/pdf": {0x25, 0x50, 0x44, 0x46},
	"image/gif":       {0x47, 0x49, 0x46, 0x38},
}

// magicMatches reports whether data starts with the signature of declaredType.
// Types without a known signature always match.
func magicMatches(data []byte, declaredType string) bool {
	mediaType, _, err := mime.ParseMediaType(declaredType)
	if err != nil {
		return true
	}
	if mediaType == "image/jpg" {
		mediaType = "image/jpeg"
	}
	sig, ok := magicNumbers[mediaType]
	if !ok {
		return true
	}
	return bytes.HasPrefix(data, sig)
}
