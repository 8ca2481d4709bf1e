// Package analysis turns an acquired video into a structured visual report.
//
// Frames are sampled with ffmpeg and scored for scene changes. Up to
// MaxFrames key frames are selected: scene changes first (at most half the
// budget), then the highest-scoring remaining frames spaced more than two
// seconds from every selected frame. Each key frame is labelled by a vision
// model; labels under the confidence floor are dropped and the rest are
// aggregated per name. The most confident frames then receive a detailed
// description with the aggregated labels as context.
//
// A single frame failing is tolerated. The stage fails with
// ErrAnalysisService only when no frame could be labelled.
package analysis
