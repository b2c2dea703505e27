package services

import "context"

type contextKey string

const (
	imageKey     contextKey = "image"
	trackKey     contextKey = "track"
	requestIDKey contextKey = "request_id"
)

// TrackID names a cylinder/head pair.
type TrackID struct {
	Cylinder int
	Head     int
}

// WithImage annotates context with the image path being processed.
func WithImage(ctx context.Context, path string) context.Context {
	if path == "" {
		return ctx
	}
	return context.WithValue(ctx, imageKey, path)
}

// ImageFromContext returns the image path if present.
func ImageFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(imageKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithTrack annotates context with the cylinder and head being processed.
func WithTrack(ctx context.Context, cylinder, head int) context.Context {
	return context.WithValue(ctx, trackKey, TrackID{Cylinder: cylinder, Head: head})
}

// TrackFromContext extracts the cylinder/head pair if present.
func TrackFromContext(ctx context.Context) (TrackID, bool) {
	v, ok := ctx.Value(trackKey).(TrackID)
	return v, ok
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
