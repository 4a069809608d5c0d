// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package model

// Audience is the execution context a run (and a task) belongs to.
type Audience string

const (
	// AudienceSystem is the machine-wide, privileged context.
	AudienceSystem Audience = "system"
	// AudienceUser is the context of an interactive user session.
	AudienceUser Audience = "user"
)

// ParseAudience maps a directive or flag value onto an Audience.
// Matching is exact.
func ParseAudience(s string) (Audience, bool) {
	switch Audience(s) {
	case AudienceSystem:
		return AudienceSystem, true
	case AudienceUser:
		return AudienceUser, true
	default:
		return "", false
	}
}

// Valid reports whether a is one of the known audiences.
func (a Audience) Valid() bool {
	return a == AudienceSystem || a == AudienceUser
}
