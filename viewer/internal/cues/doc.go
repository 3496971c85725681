// Package cues parses WebVTT and SRT subtitle files into timed cues.
// Cue times are milliseconds from the start of the media, the same
// session-relative time base the focus timeline uses.
package cues
