// Package app wires the agent together and runs one full cycle for one
// audience: synchronize the task repository, build and order the task list,
// then drive the runner until it completes, fails, or requests a reboot.
// It is decoupled from any specific entrypoint like a CLI or service host.
package app
