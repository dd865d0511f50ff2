// Package ir provides the document value model and log wire types for statehub.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps the value model the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - NO float types anywhere - money and quantities are int64 minor units,
//     so a replayed Store compares exactly equal to the live one
//   - Objects are never mutated after they are handed to a Store; use Clone
//   - All JSON tags use snake_case
//   - Sequence numbers order the log; timestamps are informational only
package ir
