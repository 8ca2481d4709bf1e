// Package textutil provides text helpers shared by the pipeline stages.
//
// SanitizeTitle turns an arbitrary human-readable title into a short,
// filesystem-safe token. Non-ASCII letters are transliterated where a
// decomposition exists (é becomes e) and dropped otherwise.
//
// WordCount counts spoken words for the speech-rate estimate used when
// fitting commentary into a video window.
package textutil
