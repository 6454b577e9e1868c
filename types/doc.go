// Package types defines shared types used across the CanvasFlow framework,
// most notably the structured [Error] type and its error codes.
package types
