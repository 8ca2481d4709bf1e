// Package ffprobe inspects media containers with the ffprobe CLI.
//
// Acquisition uses it to confirm a downloaded or uploaded file is playable
// and within the duration ceiling; speech synthesis uses it to measure clip
// lengths for alignment.
package ffprobe
