// Package ytdlp wraps the yt-dlp command line downloader.
//
// Options is the validated, explicit set of transfer settings the acquisition
// engine may pass; unknown knobs cannot be smuggled through. Client.Probe
// fetches metadata without transferring media and Client.Download performs
// the transfer while streaming progress. Failures carry a Failure class
// derived from yt-dlp's stderr so callers can tell authentication problems
// from missing media.
package ytdlp
