// Package commentary writes the narration script for a job.
//
// The generator asks the language model for timed segments in JSON, then
// normalizes them against the video: segments are sorted, overlaps are
// clamped to the previous end, ends are capped at the video duration and
// empty or zero-length segments are dropped. Speech length is estimated from
// the word count at 150 wpm for English and 120 wpm for Urdu; when the
// estimate exceeds the target duration the script is requested once more
// with a tighter word budget.
package commentary
