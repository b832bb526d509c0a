// Package audit keeps a tamper-evident log of vault operations.
//
// Events are appended as JSON lines to one file per month. Each record
// carries a sequence number, the HMAC of the previous record, and its own
// HMAC-SHA256, so deleting, reordering or editing a record breaks the chain.
// The HMAC key is derived from the vault key, so the log can only be
// written and verified by someone who knows the PIN. Note titles are
// recorded as HMACs, never in clear.
package audit

import (
	"bufio"
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"github.com/forest6511/pinvault/internal/fsutil"
	"github.com/forest6511/pinvault/pkg/crypto"
)

const (
	// MinAuditDiskSpace is the free space required before appending.
	MinAuditDiskSpace = 1024 * 1024

	hkdfInfo    = "pinvault-audit-v1"
	genesisHash = "genesis"
	metaFile    = "audit.meta"
	logSuffix   = ".jsonl"
)

// Operation types
const (
	OpPinSet      = "pin.set"
	OpPinChange   = "pin.change"
	OpNoteSave    = "note.save"
	OpNoteDelete  = "note.delete"
	OpVaultExport = "vault.export"
	OpVaultImport = "vault.import"
)

// Source identifies where the operation originated
const (
	SourceCLI = "cli"
	SourceAPI = "api"
)

// Result indicates the outcome of an operation
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Errors
var (
	ErrKeyNotSet    = errors.New("audit: HMAC key not set")
	ErrChainInvalid = errors.New("audit: chain verification failed")
)

// Event is a single audit log record.
type Event struct {
	Version   int    `json:"v"`
	ID        string `json:"id"`
	Timestamp string `json:"ts"` // RFC 3339, nanoseconds

	Operation string `json:"op"`
	Title     string `json:"title_hmac,omitempty"`

	Source    string `json:"source"`
	SessionID string `json:"session_id"`

	Result string            `json:"result"`
	Error  string            `json:"error,omitempty"`
	Ctx    map[string]string `json:"ctx,omitempty"`

	Chain Chain `json:"chain"`
}

// Chain links a record to its predecessor.
type Chain struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
	HMAC     string `json:"hmac"`
}

// ChainState is persisted in audit.meta so appends can resume the chain.
type ChainState struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
}

// VerifyResult contains the results of chain verification.
type VerifyResult struct {
	Valid        bool     `json:"valid"`
	RecordsTotal int      `json:"records_total"`
	Errors       []string `json:"errors,omitempty"`
}

// Logger appends to and verifies the audit log in a directory.
type Logger struct {
	path      string
	hmacKey   []byte
	mu        sync.Mutex
	sequence  int64
	prevHash  string
	sessionID string
	now       func() time.Time
}

// NewLogger creates a logger for the audit directory at path. It cannot
// write until SetHMACKey is called.
func NewLogger(path string) *Logger {
	return &Logger{
		path:      path,
		prevHash:  genesisHash,
		sessionID: uuid.NewString(),
		now:       time.Now,
	}
}

// Path returns the audit log directory path.
func (l *Logger) Path() string {
	return l.path
}

// SessionID returns the identifier stamped on this logger's events.
func (l *Logger) SessionID() string {
	return l.sessionID
}

// Keyed reports whether SetHMACKey has been called.
func (l *Logger) Keyed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hmacKey != nil
}

// SetHMACKey derives the HMAC key from the vault key and loads the chain
// state.
func (l *Logger) SetHMACKey(vaultKey []byte) error {
	key, err := deriveHMACKey(vaultKey)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	crypto.SecureWipe(l.hmacKey)
	l.hmacKey = key
	if err := l.loadChainState(); err != nil {
		// First run, or the meta file was lost; Verify will tell.
		l.sequence = 0
		l.prevHash = genesisHash
	}
	return nil
}

func deriveHMACKey(vaultKey []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, vaultKey, nil, []byte(hkdfInfo))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("audit: failed to derive HMAC key: %w", err)
	}
	return key, nil
}

// Log appends an event. title may be empty; errMsg is empty on success.
func (l *Logger) Log(op, source, title, errMsg string, ctx map[string]string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hmacKey == nil {
		return ErrKeyNotSet
	}
	if err := os.MkdirAll(l.path, fsutil.DirMode); err != nil {
		return fmt.Errorf("audit: failed to create directory: %w", err)
	}
	if err := l.checkDiskSpace(); err != nil {
		return err
	}

	now := l.now().UTC()
	event := Event{
		Version:   1,
		ID:        uuid.NewString(),
		Timestamp: now.Format(time.RFC3339Nano),
		Operation: op,
		Source:    source,
		SessionID: l.sessionID,
		Result:    ResultSuccess,
		Ctx:       ctx,
	}
	if errMsg != "" {
		event.Result = ResultError
		event.Error = errMsg
	}
	if title != "" {
		event.Title = l.sign([]byte(title))
	}

	event.Chain.Sequence = l.sequence + 1
	event.Chain.PrevHash = l.prevHash
	event.Chain.HMAC = l.sign(recordData(&event))

	if err := l.appendEvent(now, &event); err != nil {
		return err
	}
	l.sequence = event.Chain.Sequence
	l.prevHash = event.Chain.HMAC
	return l.saveChainState()
}

// LogSuccess records a successful operation.
func (l *Logger) LogSuccess(op, source, title string) error {
	return l.Log(op, source, title, "", nil)
}

// LogError records a failed operation.
func (l *Logger) LogError(op, source, title string, err error) error {
	return l.Log(op, source, title, err.Error(), nil)
}

// TitleHMAC returns the digest a title is recorded under, for lookups.
func (l *Logger) TitleHMAC(title string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.hmacKey == nil {
		return "", ErrKeyNotSet
	}
	return l.sign([]byte(title)), nil
}

func (l *Logger) sign(data []byte) string {
	return signWith(l.hmacKey, data)
}

func signWith(key, data []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// recordData is the byte string covered by a record's HMAC: every field
// except the HMAC itself.
func recordData(e *Event) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%d|%s|%s|%s|%s|%s|%s|%s|%s|",
		e.Version, e.ID, e.Timestamp, e.Operation, e.Title,
		e.Source, e.SessionID, e.Result, e.Error)

	keys := make([]string, 0, len(e.Ctx))
	for k := range e.Ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s;", k, e.Ctx[k])
	}

	fmt.Fprintf(&b, "|%d|%s", e.Chain.Sequence, e.Chain.PrevHash)
	return []byte(b.String())
}

func (l *Logger) appendEvent(ts time.Time, event *Event) error {
	name := filepath.Join(l.path, ts.Format("2006-01")+logSuffix)
	f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, fsutil.FileMode)
	if err != nil {
		return fmt.Errorf("audit: failed to open log file: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal event: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("audit: failed to write event: %w", err)
	}
	return nil
}

func (l *Logger) loadChainState() error {
	data, err := os.ReadFile(filepath.Join(l.path, metaFile))
	if err != nil {
		return err
	}
	var state ChainState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	l.sequence = state.Sequence
	l.prevHash = state.PrevHash
	return nil
}

func (l *Logger) saveChainState() error {
	data, err := json.Marshal(ChainState{Sequence: l.sequence, PrevHash: l.prevHash})
	if err != nil {
		return fmt.Errorf("audit: failed to marshal chain state: %w", err)
	}
	if err := fsutil.WriteFileAtomic(filepath.Join(l.path, metaFile), data, fsutil.FileMode); err != nil {
		return fmt.Errorf("audit: failed to save chain state: %w", err)
	}
	return nil
}

// logFiles returns the monthly log files in chronological order.
func (l *Logger) logFiles() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(l.path, "*"+logSuffix))
	if err != nil {
		return nil, fmt.Errorf("audit: failed to list log files: %w", err)
	}
	// YYYY-MM names sort chronologically.
	sort.Strings(files)
	return files, nil
}

func readLogFile(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var events []Event
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("failed to parse line: %w", err)
		}
		events = append(events, event)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (l *Logger) readAll() ([][]Event, []string, error) {
	files, err := l.logFiles()
	if err != nil {
		return nil, nil, err
	}
	all := make([][]Event, len(files))
	for i, file := range files {
		events, err := readLogFile(file)
		if err != nil {
			return nil, nil, fmt.Errorf("audit: failed to read %s: %w", filepath.Base(file), err)
		}
		all[i] = events
	}
	return all, files, nil
}

// Verify walks the whole chain and reports every break it finds.
func (l *Logger) Verify() (*VerifyResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hmacKey == nil {
		return nil, ErrKeyNotSet
	}
	all, _, err := l.readAll()
	if err != nil {
		return nil, err
	}
	return verifyChain(l.hmacKey, all), nil
}

func verifyChain(key []byte, all [][]Event) *VerifyResult {
	result := &VerifyResult{Valid: true}
	prev := genesisHash
	var seq int64 = 1

	fail := func(format string, args ...any) {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf(format, args...))
	}

	for _, events := range all {
		for i := range events {
			e := &events[i]
			result.RecordsTotal++

			if e.Chain.Sequence != seq {
				fail("sequence gap at record %s: expected %d, got %d", e.ID, seq, e.Chain.Sequence)
			}
			if e.Chain.PrevHash != prev {
				fail("chain broken at record %s: previous hash does not match", e.ID)
			}
			if !hmac.Equal([]byte(e.Chain.HMAC), []byte(signWith(key, recordData(e)))) {
				fail("HMAC mismatch at record %s: possible tampering", e.ID)
			}

			prev = e.Chain.HMAC
			seq = e.Chain.Sequence + 1
		}
	}
	return result
}

// ListEvents returns up to limit of the most recent events (0 = all)
// recorded after since (zero = no filter), oldest first.
func (l *Logger) ListEvents(limit int, since time.Time) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	all, _, err := l.readAll()
	if err != nil {
		return nil, err
	}

	var filtered []Event
	for _, events := range all {
		for _, e := range events {
			if !since.IsZero() {
				ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
				if err != nil || !ts.After(since) {
					continue
				}
			}
			filtered = append(filtered, e)
		}
	}

	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return filtered, nil
}

// Rekey re-signs the whole chain under a new vault key. The chain must
// verify under the current key first; otherwise ErrChainInvalid is
// returned and nothing is rewritten. Title digests keep the key they were
// recorded with.
func (l *Logger) Rekey(newVaultKey []byte) error {
	newKey, err := deriveHMACKey(newVaultKey)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hmacKey == nil {
		return ErrKeyNotSet
	}
	all, files, err := l.readAll()
	if err != nil {
		return err
	}
	if res := verifyChain(l.hmacKey, all); !res.Valid {
		return fmt.Errorf("%w: %s", ErrChainInvalid, strings.Join(res.Errors, "; "))
	}

	prev := genesisHash
	for i, events := range all {
		var buf bytes.Buffer
		for j := range events {
			e := &events[j]
			e.Chain.PrevHash = prev
			e.Chain.HMAC = signWith(newKey, recordData(e))
			prev = e.Chain.HMAC

			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("audit: failed to marshal event: %w", err)
			}
			buf.Write(data)
			buf.WriteByte('\n')
		}
		if err := fsutil.WriteFileAtomic(files[i], buf.Bytes(), fsutil.FileMode); err != nil {
			return fmt.Errorf("audit: failed to rewrite %s: %w", filepath.Base(files[i]), err)
		}
	}

	crypto.SecureWipe(l.hmacKey)
	l.hmacKey = newKey
	if len(all) == 0 {
		return nil
	}
	l.prevHash = prev
	return l.saveChainState()
}

// Export returns events between since and until (zero values mean no
// bound) as "json" or "csv".
func (l *Logger) Export(format string, since, until time.Time) ([]byte, error) {
	events, err := l.ListEvents(0, time.Time{})
	if err != nil {
		return nil, err
	}

	var filtered []Event
	for _, e := range events {
		ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
		if err != nil {
			continue
		}
		if (!since.IsZero() && ts.Before(since)) || (!until.IsZero() && ts.After(until)) {
			continue
		}
		filtered = append(filtered, e)
	}

	switch format {
	case "json":
		return json.MarshalIndent(filtered, "", "  ")
	case "csv":
		return formatCSV(filtered), nil
	default:
		return nil, fmt.Errorf("audit: unsupported format: %s", format)
	}
}

func formatCSV(events []Event) []byte {
	var b bytes.Buffer
	b.WriteString("timestamp,operation,result,title_hmac\n")
	for _, e := range events {
		title := e.Title
		if len(title) > 16 {
			title = title[:16] + "..."
		}
		fmt.Fprintf(&b, "%s,%s,%s,%s\n",
			csvEscape(e.Timestamp), csvEscape(e.Operation), csvEscape(e.Result), csvEscape(title))
	}
	return b.Bytes()
}

// csvEscape quotes a field that contains separators or starts with a
// spreadsheet formula character.
func csvEscape(field string) string {
	if field == "" {
		return field
	}
	if !strings.ContainsAny(field[:1], "=+-@") && !strings.ContainsAny(field, ",\"\r\n") {
		return field
	}
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}
