// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package utils

import "strings"

// Environment is the deployment environment the process runs in.
type Environment string

const (
	PRODUCTION  Environment = "production"
	DEVELOPMENT Environment = "development"
)

// Get returns the environment as its canonical string.
func (e Environment) Get() string {
	return string(e)
}

// FromEnvironmentStr parses an environment name, defaulting to development
// for anything unrecognized.
func FromEnvironmentStr(s string) Environment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "production":
		return PRODUCTION
	default:
		return DEVELOPMENT
	}
}
