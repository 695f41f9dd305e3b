package output

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const AuditMagic = "MWAUDIT1"

// AuditWriter appends length-prefixed inference records to a binary
// log so raw task outcomes can be replayed after the fact.
type AuditWriter struct {
	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

func NewAuditWriter(outputDir string, prefix string) (*AuditWriter, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, err
	}
	timestamp := time.Now().Format("20060102_150405")
	filename := filepath.Join(outputDir, fmt.Sprintf("%s_%s.bin", timestamp, prefix))
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	w := bufio.NewWriterSize(f, 1024*1024)
	if _, err := w.WriteString(AuditMagic); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &AuditWriter{
		f: f,
		w: w,
	}, nil
}

func (a *AuditWriter) Record(payload []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.w == nil {
		return fmt.Errorf("audit writer is closed")
	}
	var header [12]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(time.Now().UnixNano()))
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(payload)))
	if _, err := a.w.Write(header[:]); err != nil {
		return err
	}
	if _, err := a.w.Write(payload); err != nil {
		return err
	}
	return a.w.Flush()
}

func (a *AuditWriter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.w == nil {
		return nil
	}
	if err := a.w.Flush(); err != nil {
		_ = a.f.Close()
		a.w = nil
		return err
	}
	err := a.f.Close()
	a.w = nil
	return err
}
