// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package utils

import "github.com/google/uuid"

// NewSessionID returns a globally unique session identifier.
func NewSessionID() string {
	return uuid.New().String()
}
