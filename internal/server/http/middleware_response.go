package http

import "net/http"

type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

// Unwrap exposes the underlying ResponseWriter so downstream handlers
// can recover original capabilities like http.Flusher.
func (r *responseRecorder) Unwrap() http.ResponseWriter {
	if r == nil {
		return nil
	}
	return r.ResponseWriter
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	if n > 0 {
		r.bytes += int64(n)
	}
	return n, err
}

type responseRecorderFlusher struct {
	http.ResponseWriter
	http.Flusher
}

func (r *responseRecorderFlusher) Unwrap() http.ResponseWriter {
	if r == nil {
		return nil
	}
	return r.ResponseWriter
}

func wrapResponseWriter(w http.ResponseWriter) (*responseRecorder, http.ResponseWriter) {
	rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
	var wrapped http.ResponseWriter = rec

	// Flusher must survive wrapping or the status stream stops flushing.
	if flusher, ok := w.(http.Flusher); ok {
		wrapped = &responseRecorderFlusher{ResponseWriter: wrapped, Flusher: flusher}
	}
	return rec, wrapped
}
