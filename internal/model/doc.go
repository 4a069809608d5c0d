// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package model holds the plain data types shared by every stage of a run:
// the Task discovered in the synced repository, its TaskType, the Audience a
// run executes for, and the sorted string Set used for names and groups.
//
// # Core Concepts
//
//   - Task: One executable script plus the metadata accumulated from the
//     directories above it (type, audience, dependencies, filters, reboot flag)
//     and the SHA-256 digest of its content.
//
//   - TaskType: OneShot tasks run once per distinct content hash. OnBoot tasks
//     run on every invocation.
//
//   - Audience: The execution context of a run. A system run and a user run on
//     the same machine keep separate state and see different tasks.
//
// The types here carry no behavior beyond validation and set arithmetic. They
// are encoded into the durable snapshot as-is, so field tags are part of the
// on-disk format.
package model
