package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
	"time"
)

var errWriterClosed = errors.New("logger: writer closed")

const flushInterval = 200 * time.Millisecond

// asyncWriter fans log lines out to buffered sinks from a single goroutine.
type asyncWriter struct {
	queue    chan []byte
	flushReq chan chan error
	done     chan struct{}

	closeOnce sync.Once
	sendMu    sync.RWMutex // guards closed against in-flight sends
	closed    bool
	errMu     sync.Mutex
	err       error

	sinks []*bufio.Writer
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	w := &asyncWriter{
		queue:    make(chan []byte, 256),
		flushReq: make(chan chan error),
		done:     make(chan struct{}),
	}
	for _, out := range writers {
		if out != nil {
			w.sinks = append(w.sinks, bufio.NewWriterSize(out, bufSize))
		}
	}
	go w.loop()
	return w
}

func (w *asyncWriter) loop() {
	defer close(w.done)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case line, ok := <-w.queue:
			if !ok {
				w.record(w.flushSinks())
				return
			}
			w.record(w.writeSinks(line))
		case ack := <-w.flushReq:
			// drain queued lines so Flush observes every prior Write
			for drained := false; !drained; {
				select {
				case line := <-w.queue:
					w.record(w.writeSinks(line))
				default:
					drained = true
				}
			}
			ack <- w.flushSinks()
		case <-ticker.C:
			w.record(w.flushSinks())
		}
	}
}

// Write copies p and queues it. It blocks when the queue is full.
func (w *asyncWriter) Write(p []byte) error {
	if err := w.lastErr(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	w.sendMu.RLock()
	defer w.sendMu.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	w.queue <- append([]byte(nil), p...)
	return nil
}

// Flush writes everything queued so far through to the sinks.
func (w *asyncWriter) Flush() error {
	ack := make(chan error, 1)
	select {
	case w.flushReq <- ack:
		return <-ack
	case <-w.done:
		return w.lastErr()
	}
}

// Close drains the queue, flushes and reports the first write error.
func (w *asyncWriter) Close() error {
	w.closeOnce.Do(func() {
		w.sendMu.Lock()
		w.closed = true
		close(w.queue)
		w.sendMu.Unlock()
	})
	<-w.done
	return w.lastErr()
}

func (w *asyncWriter) writeSinks(line []byte) error {
	for _, sink := range w.sinks {
		if _, err := sink.Write(line); err != nil {
			return err
		}
	}
	return nil
}

func (w *asyncWriter) flushSinks() error {
	var errs []error
	for _, sink := range w.sinks {
		if err := sink.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) record(err error) {
	if err == nil {
		return
	}
	w.errMu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.errMu.Unlock()
}

func (w *asyncWriter) lastErr() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}
