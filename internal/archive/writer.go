// Package archive builds a Darwin Core Archive incrementally: rows are
// spooled to CSV files in a temporary workspace as they arrive, and the
// workspace is packaged into a ZIP only on Finalize. This keeps memory
// usage independent of result-set size — the spooled CSVs are the
// accumulator, not any in-memory slice.
package archive

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dwca-toolkit/downloader/internal/mapper"
)

// Extension names, matching the configuration layer's extension keys.
const (
	ExtMultimedia      = "multimedia"
	ExtAudiovisual     = "audiovisual"
	ExtIdentifications = "identifications"
)

var extensionFile = map[string]string{
	ExtMultimedia:      "multimedia.csv",
	ExtAudiovisual:      "audiovisual.csv",
	ExtIdentifications: "identification.csv",
}

var extensionFields = map[string][]mapper.Field{
	ExtMultimedia:      mapper.MultimediaFields,
	ExtAudiovisual:      mapper.AudiovisualFields,
	ExtIdentifications: mapper.IdentificationFields,
}

// WriterError wraps a local I/O, filesystem, or ZIP failure.
type WriterError struct {
	Op  string
	Err error
}

func (e *WriterError) Error() string { return fmt.Sprintf("archive: %s: %v", e.Op, e.Err) }
func (e *WriterError) Unwrap() error { return e.Err }

type csvSink struct {
	file    *os.File
	writer  *csv.Writer
	rows    int
}

// Writer is the streaming Archive Writer. It is not safe for concurrent
// use; the orchestrator is its sole owner for the lifetime of one run.
type Writer struct {
	tempDir       string
	mediaDir      string
	finalized     bool
	extensions    map[string]bool
	abstractLines []string

	occurrence *csvSink
	ext        map[string]*csvSink
}

// New creates a fresh temporary workspace, opens occurrence.csv with its
// header, and remembers which extensions are enabled (lazily opened on
// first non-empty batch).
func New(abstractLines []string, enabledExtensions []string) (*Writer, error) {
	tempDir, err := os.MkdirTemp("", "dwca-*")
	if err != nil {
		return nil, &WriterError{Op: "create temp dir", Err: err}
	}
	mediaDir := filepath.Join(tempDir, "media")
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		os.RemoveAll(tempDir)
		return nil, &WriterError{Op: "create media dir", Err: err}
	}

	w := &Writer{
		tempDir:       tempDir,
		mediaDir:      mediaDir,
		extensions:    make(map[string]bool, len(enabledExtensions)),
		abstractLines: abstractLines,
		ext:           make(map[string]*csvSink),
	}
	for _, e := range enabledExtensions {
		w.extensions[e] = true
	}

	sink, err := w.openCSV("occurrence.csv", mapper.Names(mapper.OccurrenceFields))
	if err != nil {
		os.RemoveAll(tempDir)
		return nil, err
	}
	w.occurrence = sink
	return w, nil
}

func (w *Writer) openCSV(filename string, header []string) (*csvSink, error) {
	f, err := os.Create(filepath.Join(w.tempDir, filename))
	if err != nil {
		return nil, &WriterError{Op: "open " + filename, Err: err}
	}
	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		f.Close()
		return nil, &WriterError{Op: "write header for " + filename, Err: err}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return nil, &WriterError{Op: "flush header for " + filename, Err: err}
	}
	return &csvSink{file: f, writer: cw}, nil
}

// MediaDir returns the absolute path consumers (the photo fetcher)
// should write media files into.
func (w *Writer) MediaDir() string {
	return w.mediaDir
}

// AddOccurrences appends rows to occurrence.csv and flushes.
func (w *Writer) AddOccurrences(rows [][]string) error {
	if w.finalized {
		return &WriterError{Op: "add occurrences", Err: fmt.Errorf("writer already finalized")}
	}
	return w.appendAndFlush(w.occurrence, rows, "occurrence.csv")
}

// AddMultimedia lazily opens multimedia.csv on first call and appends rows.
func (w *Writer) AddMultimedia(rows [][]string) error {
	return w.addExtension(ExtMultimedia, rows)
}

// AddAudiovisual lazily opens audiovisual.csv on first call and appends rows.
func (w *Writer) AddAudiovisual(rows [][]string) error {
	return w.addExtension(ExtAudiovisual, rows)
}

// AddIdentifications lazily opens identification.csv on first call and appends rows.
func (w *Writer) AddIdentifications(rows [][]string) error {
	return w.addExtension(ExtIdentifications, rows)
}

func (w *Writer) addExtension(name string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	if w.finalized {
		return &WriterError{Op: "add " + name, Err: fmt.Errorf("writer already finalized")}
	}
	if !w.extensions[name] {
		return nil
	}
	sink, ok := w.ext[name]
	if !ok {
		var err error
		sink, err = w.openCSV(extensionFile[name], mapper.Names(extensionFields[name]))
		if err != nil {
			return err
		}
		w.ext[name] = sink
	}
	return w.appendAndFlush(sink, rows, extensionFile[name])
}

func (w *Writer) appendAndFlush(sink *csvSink, rows [][]string, filename string) error {
	for _, row := range rows {
		if err := sink.writer.Write(row); err != nil {
			return &WriterError{Op: "write row to " + filename, Err: err}
		}
	}
	sink.rows += len(rows)
	sink.writer.Flush()
	if err := sink.writer.Error(); err != nil {
		return &WriterError{Op: "flush " + filename, Err: err}
	}
	return nil
}

// Close releases the temporary workspace without finalizing. Safe to
// call after Finalize (no-op) or instead of it (abandons the run).
func (w *Writer) Close() {
	w.closeSinks()
	os.RemoveAll(w.tempDir)
}

func (w *Writer) closeSinks() {
	if w.occurrence != nil {
		w.occurrence.file.Close()
	}
	for _, s := range w.ext {
		s.file.Close()
	}
}
