// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the Matrix structure and its cross-product expansion.
// Expansion is an explicit materialization step: the scheduler receives
// concrete combinations up front and never iterates axes itself.
package model

import (
	"fmt"
	"sort"
	"strings"
)

// Matrix maps axis name to an ordered sequence of values. AxisOrder
// preserves declaration order so expansion is deterministic.
type Matrix struct {
	Axes      map[string][]any
	AxisOrder []string
}

// Combination is one concrete assignment of a value to every axis.
type Combination map[string]any

// Key renders a stable identifier suffix, e.g. "os=linux, node=20".
// Axis order follows the matrix declaration.
func (c Combination) Key(order []string) string {
	parts := make([]string, 0, len(c))
	for _, axis := range order {
		if v, ok := c[axis]; ok {
			parts = append(parts, fmt.Sprintf("%s=%v", axis, v))
		}
	}
	// Combinations built outside expansion may carry axes missing from
	// the order hint; render those too, sorted for stability.
	if len(parts) < len(c) {
		var rest []string
		for axis, v := range c {
			if !contains(order, axis) {
				rest = append(rest, fmt.Sprintf("%s=%v", axis, v))
			}
		}
		sort.Strings(rest)
		parts = append(parts, rest...)
	}
	return strings.Join(parts, ", ")
}

// Expand materializes the cross product of all axes, in declaration order
// with the last axis varying fastest. A matrix with no axes expands to nil;
// the parser rejects empty axes before expansion can ever see one.
func (m *Matrix) Expand() []Combination {
	if m == nil || len(m.AxisOrder) == 0 {
		return nil
	}

	combos := []Combination{{}}
	for _, axis := range m.AxisOrder {
		values := m.Axes[axis]
		next := make([]Combination, 0, len(combos)*len(values))
		for _, base := range combos {
			for _, v := range values {
				combo := make(Combination, len(base)+1)
				for k, bv := range base {
					combo[k] = bv
				}
				combo[axis] = v
				next = append(next, combo)
			}
		}
		combos = next
	}
	return combos
}

// Size returns the number of combinations Expand will produce.
func (m *Matrix) Size() int {
	if m == nil || len(m.AxisOrder) == 0 {
		return 0
	}
	n := 1
	for _, axis := range m.AxisOrder {
		n *= len(m.Axes[axis])
	}
	return n
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}
