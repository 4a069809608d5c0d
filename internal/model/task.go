// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines Task, the unit of work produced by the builder and consumed
// by the runner.
package model

import "fmt"

// TaskType decides how often a task runs.
type TaskType string

const (
	// TaskTypeOneShot runs once per distinct content hash.
	TaskTypeOneShot TaskType = "oneshot"
	// TaskTypeOnBoot runs on every invocation.
	TaskTypeOnBoot TaskType = "onboot"
)

// ParseTaskType maps a directive value onto a TaskType. Matching is exact.
func ParseTaskType(s string) (TaskType, bool) {
	switch TaskType(s) {
	case TaskTypeOneShot:
		return TaskTypeOneShot, true
	case TaskTypeOnBoot:
		return TaskTypeOnBoot, true
	default:
		return "", false
	}
}

// Task is a single executable unit discovered in the synced repository.
//
// Name is the script file name without its extension and is the identity key
// across runs. Hash is the lowercase hex SHA-256 of the script bytes.
type Task struct {
	Name           string   `msgpack:"name" yaml:"name"`
	Type           TaskType `msgpack:"type" yaml:"type"`
	Context        Audience `msgpack:"context" yaml:"context"`
	DependsOn      Set      `msgpack:"depends_on" yaml:"depends_on,omitempty"`
	UserFilter     Set      `msgpack:"user_filter" yaml:"user_filter,omitempty"`
	GroupFilter    Set      `msgpack:"group_filter" yaml:"group_filter,omitempty"`
	RebootRequired bool     `msgpack:"reboot_required" yaml:"reboot_required"`
	Executable     string   `msgpack:"executable" yaml:"executable"`
	Hash           string   `msgpack:"hash" yaml:"hash"`
}

// String returns a compact description used in log lines and errors.
func (t Task) String() string {
	return fmt.Sprintf("%s(%s/%s)", t.Name, t.Context, t.Type)
}
