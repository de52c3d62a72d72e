// Package dataset discovers camera directories and picks each camera's
// timecode log and video for one capture sequence.
package dataset
