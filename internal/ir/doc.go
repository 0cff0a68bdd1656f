// Package ir provides the canonical value types shared by every upbb package.
//
// This package contains type definitions and their canonical encodings only.
// All other internal packages import ir; ir imports nothing internal. This
// keeps ir the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Quantities are immutable values; equality and hashing are by content
//   - Evaluation failures are a typed Outcome, never an unlabeled NaN
//   - All JSON tags use snake_case
//   - Records are ordered by generation index, never by wall-clock time
package ir
