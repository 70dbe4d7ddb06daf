// Package log provides the structured logger used throughout cacheandra.
//
// It uses a key/value calling convention (log.Info("msg", "k", v, ...))
// rather than printf-style formatting, and ships an async,
// hourly-rotating file writer as an optional sink alongside the default
// terminal writer.
package log

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const backupTimeFormat = "2006-01-02T15-04-05.000"

const asyncWriterQueueSize = 4096

// AsyncFileWriter writes log lines to a file on a background goroutine,
// rotating the file every rotateHours hours (or sooner, once maxSizeMB
// is exceeded) and pruning backups older than maxBackups*rotateHours.
type AsyncFileWriter struct {
	filePath    string
	maxSizeMB   int
	rotateHours uint
	maxBackups  uint

	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
	size int64

	nextRotation time.Time

	msgCh chan []byte
	done  chan struct{}
	wg    sync.WaitGroup
}

// NewAsyncFileWriter constructs a writer for filePath. It does not touch
// the filesystem until Start is called.
func NewAsyncFileWriter(filePath string, maxSizeMB int, rotateHours uint, maxBackups uint) *AsyncFileWriter {
	return &AsyncFileWriter{
		filePath:    filePath,
		maxSizeMB:   maxSizeMB,
		rotateHours: rotateHours,
		maxBackups:  maxBackups,
		msgCh:       make(chan []byte, asyncWriterQueueSize),
		done:        make(chan struct{}),
	}
}

// Start opens the log file and begins the background writer loop.
func (w *AsyncFileWriter) Start() error {
	if err := w.openFile(); err != nil {
		return err
	}
	w.nextRotation = nextRotationTime(time.Now(), w.rotateHours)
	w.wg.Add(1)
	go w.loop()
	return nil
}

// Write enqueues p for asynchronous writing. It never blocks on I/O; if
// the queue is full the line is dropped rather than stalling the caller.
func (w *AsyncFileWriter) Write(p []byte) (int, error) {
	buf := make([]byte, len(p))
	copy(buf, p)
	select {
	case w.msgCh <- buf:
	default:
		// queue full: drop rather than block the logging caller
	}
	return len(p), nil
}

// Stop drains the queue and closes the underlying file.
func (w *AsyncFileWriter) Stop() {
	close(w.done)
	w.wg.Wait()
}

func (w *AsyncFileWriter) loop() {
	defer w.wg.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case msg := <-w.msgCh:
			w.writeLine(msg)
		case <-ticker.C:
			w.maybeRotate()
		case <-w.done:
			w.drain()
			w.mu.Lock()
			if w.w != nil {
				w.w.Flush()
			}
			if w.file != nil {
				w.file.Close()
			}
			w.mu.Unlock()
			return
		}
	}
}

func (w *AsyncFileWriter) drain() {
	for {
		select {
		case msg := <-w.msgCh:
			w.writeLine(msg)
		default:
			return
		}
	}
}

func (w *AsyncFileWriter) writeLine(msg []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return
	}
	n, _ := w.w.Write(msg)
	w.size += int64(n)
	w.w.Flush()
	w.maybeRotateLocked()
}

func (w *AsyncFileWriter) maybeRotate() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.maybeRotateLocked()
}

func (w *AsyncFileWriter) maybeRotateLocked() {
	now := time.Now()
	sizeExceeded := w.maxSizeMB > 0 && w.size >= int64(w.maxSizeMB)*1024*1024
	timeExceeded := !w.nextRotation.IsZero() && !now.Before(w.nextRotation)
	if !sizeExceeded && !timeExceeded {
		return
	}
	w.rotateLocked(now)
}

func (w *AsyncFileWriter) rotateLocked(now time.Time) {
	if w.w != nil {
		w.w.Flush()
	}
	if w.file != nil {
		w.file.Close()
	}
	backupName := w.filePath + "." + now.Format(backupTimeFormat)
	os.Rename(w.filePath, backupName)

	if err := w.openFileLocked(); err != nil {
		return
	}
	w.size = 0
	w.nextRotation = nextRotationTime(now, w.rotateHours)
	go w.removeExpiredFile()
}

func (w *AsyncFileWriter) openFile() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.openFileLocked()
}

func (w *AsyncFileWriter) openFileLocked() error {
	if dir := filepath.Dir(w.filePath); dir != "." {
		os.MkdirAll(dir, 0755)
	}
	f, err := os.OpenFile(w.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	if fi, err := f.Stat(); err == nil {
		w.size = fi.Size()
	}
	w.file = f
	w.w = bufio.NewWriter(f)
	return nil
}

// getNextRotationHour returns the hour-of-day (0-23) at which the next
// rotation after now should occur, given a rotation interval of delta
// hours.
func getNextRotationHour(now time.Time, delta uint) int {
	return (now.Hour() + int(delta)) % 24
}

func nextRotationTime(now time.Time, delta uint) time.Time {
	if delta == 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(delta) * time.Hour)
}

// getExpiredFile returns the oldest backup of filePath that has aged
// past the maxBackups*rotateHours retention window, or "" if none has.
func (w *AsyncFileWriter) getExpiredFile(filePath string, maxBackups, rotateHours uint) string {
	dir, base := filepath.Split(filePath)
	if dir == "" {
		dir = "."
	}
	cutoff := time.Now().Add(-time.Duration(maxBackups*rotateHours) * time.Hour)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var oldestPath string
	var oldestTime time.Time
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, base+".") {
			continue
		}
		ts, err := time.Parse(backupTimeFormat, strings.TrimPrefix(name, base+"."))
		if err != nil {
			continue
		}
		if ts.After(cutoff) {
			continue
		}
		if oldestPath == "" || ts.Before(oldestTime) {
			oldestPath = filepath.Join(dir, name)
			oldestTime = ts
		}
	}
	return oldestPath
}

// removeExpiredFile deletes every backup of w.filePath older than the
// maxBackups*rotateHours retention window.
func (w *AsyncFileWriter) removeExpiredFile() {
	dir, base := filepath.Split(w.filePath)
	if dir == "" {
		dir = "."
	}
	cutoff := time.Now().Add(-time.Duration(w.maxBackups*w.rotateHours) * time.Hour)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, base+".") {
			continue
		}
		ts, err := time.Parse(backupTimeFormat, strings.TrimPrefix(name, base+"."))
		if err != nil {
			continue
		}
		if !ts.After(cutoff) {
			os.Remove(filepath.Join(dir, name))
		}
	}
}
