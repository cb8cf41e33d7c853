// Package audit keeps a tamper-evident JSONL log of lock events. Each
// record carries the hash of its predecessor.
package audit

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lockguard/lockguard/pkg/errclass"
	"github.com/lockguard/lockguard/pkg/fsutil"
	"github.com/lockguard/lockguard/pkg/jsonutil"
	"github.com/lockguard/lockguard/pkg/model"
)

// Recorder receives lock events. Implementations must not retain details.
type Recorder interface {
	Record(eventType model.AuditEventType, key model.LockKey, details map[string]any) error
}

// Nop discards every event.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(model.AuditEventType, model.LockKey, map[string]any) error { return nil }

// FileAppender appends audit records to a JSONL file with hash chain.
type FileAppender struct {
	path      string
	sessionID string
	now       func() time.Time
	mu        sync.Mutex
}

// NewFileAppender creates an appender tagging records with a fresh session id.
func NewFileAppender(path string) *FileAppender {
	return &FileAppender{path: path, sessionID: uuid.NewString(), now: time.Now}
}

// SetClock overrides the timestamp source.
func (a *FileAppender) SetClock(now func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.now = now
}

// SessionID returns the id stamped on records from this process.
func (a *FileAppender) SessionID() string {
	return a.sessionID
}

// Path returns the log location.
func (a *FileAppender) Path() string {
	return a.path
}

// Record implements Recorder.
func (a *FileAppender) Record(eventType model.AuditEventType, key model.LockKey, details map[string]any) error {
	return a.Append(eventType, key, details)
}

// Append adds a new audit record to the log.
func (a *FileAppender) Append(eventType model.AuditEventType, key model.LockKey, details map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(a.path), 0700); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}

	file, err := os.OpenFile(a.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	if err := fsutil.LockFile(file); err != nil {
		return fmt.Errorf("flock audit log: %w", err)
	}
	defer fsutil.UnlockFile(file)

	prevHash, err := lastRecordHash(file)
	if err != nil {
		return fmt.Errorf("get last record hash: %w", err)
	}

	record := &model.AuditRecord{
		Timestamp: a.now().UTC(),
		EventType: eventType,
		LockKey:   key,
		SessionID: a.sessionID,
		Details:   details,
		PrevHash:  prevHash,
	}
	recordHash, err := computeRecordHash(record)
	if err != nil {
		return fmt.Errorf("compute record hash: %w", err)
	}
	record.RecordHash = recordHash

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek to end: %w", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync audit log: %w", err)
	}
	return nil
}

// Records reads every well-formed record in order.
func (a *FileAppender) Records() ([]model.AuditRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	file, err := os.Open(a.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	var out []model.AuditRecord
	err = scanRecords(file, func(_ int, rec model.AuditRecord, perr error) error {
		if perr == nil {
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

// Verify walks the chain and returns the number of records checked. A
// malformed line, a wrong prev_hash link or a recomputed hash mismatch
// yields ErrAuditChainBroken naming the line.
func (a *FileAppender) Verify() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	file, err := os.Open(a.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	var prev model.HashValue
	count := 0
	err = scanRecords(file, func(line int, rec model.AuditRecord, perr error) error {
		if perr != nil {
			return errclass.ErrAuditChainBroken.WithMessagef("line %d: %v", line, perr)
		}
		if rec.PrevHash != prev {
			return errclass.ErrAuditChainBroken.WithMessagef("line %d: prev_hash does not match line %d", line, line-1)
		}
		want, herr := computeRecordHash(&rec)
		if herr != nil {
			return herr
		}
		if want != rec.RecordHash {
			return errclass.ErrAuditChainBroken.WithMessagef("line %d: record hash mismatch", line)
		}
		prev = rec.RecordHash
		count++
		return nil
	})
	return count, err
}

func scanRecords(r io.Reader, fn func(line int, rec model.AuditRecord, err error) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var rec model.AuditRecord
		err := dec.Decode(&rec)
		if err := fn(line, rec, err); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan audit log: %w", err)
	}
	return nil
}

func lastRecordHash(file *os.File) (model.HashValue, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("seek to start: %w", err)
	}
	var last model.HashValue
	err := scanRecords(file, func(_ int, rec model.AuditRecord, perr error) error {
		if perr == nil {
			last = rec.RecordHash
		}
		return nil
	})
	return last, err
}

func computeRecordHash(record *model.AuditRecord) (model.HashValue, error) {
	hashRecord := *record
	hashRecord.RecordHash = ""

	data, err := jsonutil.CanonicalMarshal(hashRecord)
	if err != nil {
		return "", fmt.Errorf("canonical marshal: %w", err)
	}
	sum := sha256.Sum256(data)
	return model.HashValue(hex.EncodeToString(sum[:])), nil
}

var (
	_ Recorder = Nop{}
	_ Recorder = (*FileAppender)(nil)
)
