// Package security builds the configuration posture report returned by
// Engine.SecurityReport. It has no I/O and does not import the root package.
package security
