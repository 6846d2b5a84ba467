// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package test

import "fmt"

// DigitSequence returns a deterministic replacement for the random credential
// generators in package core. Successive calls yield zero-padded decimal
// strings of the given width, counting up from `start`.
func DigitSequence(width int, start uint64) func() string {
	next := start
	return func() string {
		value := fmt.Sprintf("%0*d", width, next)
		next++
		return value
	}
}

// LabelSequence returns a generator that yields "<prefix>-1", "<prefix>-2",
// and so on. Tests use this in place of random UUIDs.
func LabelSequence(prefix string) func() string {
	var next uint64
	return func() string {
		next++
		return fmt.Sprintf("%s-%d", prefix, next)
	}
}
