package http

import (
	"bufio"
	"errors"
	"net"
	"net/http"
)

// statusWriter records the status the handler committed so the gate can
// decide, once the handler has returned, whether the response succeeded.
type statusWriter struct {
	w           http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusWriter) Header() http.Header {
	return s.w.Header()
}

func (s *statusWriter) WriteHeader(statusCode int) {
	if s.wroteHeader {
		return
	}
	s.wroteHeader = true
	s.status = statusCode
	s.w.WriteHeader(statusCode)
}

func (s *statusWriter) Write(b []byte) (int, error) {
	if !s.wroteHeader {
		s.WriteHeader(http.StatusOK)
	}
	return s.w.Write(b)
}

// Status returns the committed status. A handler that wrote nothing
// produces an implicit 200.
func (s *statusWriter) Status() int {
	if !s.wroteHeader {
		return http.StatusOK
	}
	return s.status
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (s *statusWriter) Unwrap() http.ResponseWriter {
	return s.w
}

func (s *statusWriter) Flush() {
	if !s.wroteHeader {
		s.WriteHeader(http.StatusOK)
	}
	if flusher, ok := s.w.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (s *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := s.w.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, errors.New("hijacking not supported")
}

func (s *statusWriter) Push(target string, opts *http.PushOptions) error {
	if pusher, ok := s.w.(http.Pusher); ok {
		return pusher.Push(target, opts)
	}
	return http.ErrNotSupported
}

// serveThenComplete runs next and then calls done exactly once with the
// final status, after the response has been flushed to the client. A panic
// in next is reported to done as a 500 and then re-raised.
func serveThenComplete(w http.ResponseWriter, r *http.Request, next http.Handler, done func(status int)) {
	sw := &statusWriter{w: w}
	defer func() {
		if p := recover(); p != nil {
			done(http.StatusInternalServerError)
			panic(p)
		}
		if sw.wroteHeader {
			if flusher, ok := w.(http.Flusher); ok {
				flusher.Flush()
			}
		}
		done(sw.Status())
	}()
	next.ServeHTTP(sw, r)
}

// settlementInterceptor holds the handler's response until the payment has
// settled. When settlement fails the handler's output is discarded and the
// failure response written by settleFunc goes out instead.
type settlementInterceptor struct {
	w http.ResponseWriter
	// settleFunc settles the payment and reports whether the handler's
	// response may proceed.
	settleFunc func() bool
	// onFailure is called when the handler itself returns an error status.
	onFailure func(statusCode int)
	committed bool
	hijacked  bool
}

// Header returns the underlying writer's header map.
func (i *settlementInterceptor) Header() http.Header {
	return i.w.Header()
}

// Write commits an implicit 200 first. After a failed settlement the
// handler's bytes are discarded.
func (i *settlementInterceptor) Write(b []byte) (int, error) {
	if !i.committed {
		i.WriteHeader(http.StatusOK)
	}
	if i.hijacked {
		return len(b), nil
	}
	return i.w.Write(b)
}

// WriteHeader passes error statuses straight through and settles the payment
// before any success status is written.
func (i *settlementInterceptor) WriteHeader(statusCode int) {
	if i.committed {
		return
	}
	i.committed = true

	if statusCode >= 400 {
		if i.onFailure != nil {
			i.onFailure(statusCode)
		}
		i.w.WriteHeader(statusCode)
		return
	}

	if !i.settleFunc() {
		i.hijacked = true
		return
	}
	i.w.WriteHeader(statusCode)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (i *settlementInterceptor) Unwrap() http.ResponseWriter {
	return i.w
}

// Flush implements http.Flusher, settling first if nothing was written yet.
func (i *settlementInterceptor) Flush() {
	if !i.committed {
		i.WriteHeader(http.StatusOK)
	}
	if i.hijacked {
		return
	}
	if flusher, ok := i.w.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack implements http.Hijacker.
func (i *settlementInterceptor) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := i.w.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, errors.New("hijacking not supported")
}

// Push implements http.Pusher.
func (i *settlementInterceptor) Push(target string, opts *http.PushOptions) error {
	if pusher, ok := i.w.(http.Pusher); ok {
		return pusher.Push(target, opts)
	}
	return http.ErrNotSupported
}
