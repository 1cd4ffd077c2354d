package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	kflate "github.com/klauspost/compress/flate"
)

// extensionOrder is the fixed order extensions are considered for
// inclusion in the archive, matching the ZIP layout documented for
// downstream aggregators.
var extensionOrder = []string{ExtMultimedia, ExtAudiovisual, ExtIdentifications}

// Finalize consumes the writer: it flushes and closes every open CSV,
// generates meta.xml and eml.xml, and packages everything plus any
// downloaded media into a ZIP at targetPath. The temporary workspace is
// always released afterward, success or failure.
func (w *Writer) Finalize(targetPath string) error {
	if w.finalized {
		return &WriterError{Op: "finalize", Err: fmt.Errorf("writer already finalized")}
	}
	w.finalized = true
	defer os.RemoveAll(w.tempDir)
	w.closeSinks()

	enabled := w.enabledWithRows()

	metaXML := generateMetaXML(enabled)
	emlXML := generateEML(w.abstractLines, time.Now())

	if err := os.WriteFile(filepath.Join(w.tempDir, "meta.xml"), []byte(metaXML), 0o644); err != nil {
		return &WriterError{Op: "write meta.xml", Err: err}
	}
	if err := os.WriteFile(filepath.Join(w.tempDir, "eml.xml"), []byte(emlXML), 0o644); err != nil {
		return &WriterError{Op: "write eml.xml", Err: err}
	}

	out, err := os.Create(targetPath)
	if err != nil {
		return &WriterError{Op: "create output file", Err: err}
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return kflate.NewWriter(w, kflate.DefaultCompression)
	})

	if err := addDeflated(zw, filepath.Join(w.tempDir, "meta.xml"), "meta.xml"); err != nil {
		return err
	}
	if err := addDeflated(zw, filepath.Join(w.tempDir, "eml.xml"), "eml.xml"); err != nil {
		return err
	}
	if err := addDeflated(zw, filepath.Join(w.tempDir, "occurrence.csv"), "occurrence.csv"); err != nil {
		return err
	}
	for _, name := range enabled {
		entry := extensionFile[name]
		if err := addDeflated(zw, filepath.Join(w.tempDir, entry), entry); err != nil {
			return err
		}
	}
	if err := addMediaTree(zw, w.mediaDir); err != nil {
		return err
	}

	if err := zw.Close(); err != nil {
		return &WriterError{Op: "close zip", Err: err}
	}
	return nil
}

func (w *Writer) enabledWithRows() []string {
	var enabled []string
	for _, name := range extensionOrder {
		if sink, ok := w.ext[name]; ok && sink.rows > 0 {
			enabled = append(enabled, name)
		}
	}
	return enabled
}

func addDeflated(zw *zip.Writer, srcPath, entryName string) error {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return &WriterError{Op: "read " + entryName, Err: err}
	}
	hdr := &zip.FileHeader{Name: entryName, Method: zip.Deflate}
	hdr.SetMode(0o644)
	fw, err := zw.CreateHeader(hdr)
	if err != nil {
		return &WriterError{Op: "create zip entry " + entryName, Err: err}
	}
	if _, err := fw.Write(data); err != nil {
		return &WriterError{Op: "write zip entry " + entryName, Err: err}
	}
	return nil
}

// addMediaTree walks mediaDir and adds every file under it, stored
// uncompressed (photos don't benefit from deflate), preserving its
// relative path under "media/".
func addMediaTree(zw *zip.Writer, mediaDir string) error {
	return filepath.WalkDir(mediaDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return &WriterError{Op: "walk media dir", Err: err}
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(filepath.Dir(mediaDir), p)
		if err != nil {
			return &WriterError{Op: "compute media relative path", Err: err}
		}
		entryName := filepath.ToSlash(rel)

		data, err := os.ReadFile(p)
		if err != nil {
			return &WriterError{Op: "read media file " + p, Err: err}
		}
		hdr := &zip.FileHeader{Name: entryName, Method: zip.Store}
		hdr.SetMode(0o644)
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return &WriterError{Op: "create zip entry " + entryName, Err: err}
		}
		if _, err := fw.Write(data); err != nil {
			return &WriterError{Op: "write zip entry " + entryName, Err: err}
		}
		return nil
	})
}
