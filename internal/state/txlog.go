package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	transactionLogTimestampLayoutConstant = "2006-01-02_15-04-05"
	transactionLogFileTemplateConstant    = "sync_log_%s.jsonl"
	transactionLogDirectoryPermissions    = 0o755
	transactionLogFilePermissions         = 0o644
	recordLineSeparatorConstant           = "\n"
)

// TransactionLog appends immutable operation records to a session-scoped
// JSON-lines file. A single process-local lock guarantees entries never
// interleave across concurrent callers.
type TransactionLog struct {
	filePath   string
	appendLock sync.Mutex
}

// NewTransactionLog creates the log directory if needed and opens a new
// timestamp-named session log file.
func NewTransactionLog(logDirectory string) (*TransactionLog, error) {
	if makeDirectoryError := os.MkdirAll(logDirectory, transactionLogDirectoryPermissions); makeDirectoryError != nil {
		return nil, makeDirectoryError
	}

	sessionFileName := fmt.Sprintf(transactionLogFileTemplateConstant, time.Now().Format(transactionLogTimestampLayoutConstant))
	return &TransactionLog{filePath: filepath.Join(logDirectory, sessionFileName)}, nil
}

// FilePath reports the session log file location.
func (transactionLog *TransactionLog) FilePath() string {
	return transactionLog.filePath
}

// Append writes one JSON record as a single line.
func (transactionLog *TransactionLog) Append(record any) error {
	recordBytes, marshalError := json.Marshal(record)
	if marshalError != nil {
		return marshalError
	}

	transactionLog.appendLock.Lock()
	defer transactionLog.appendLock.Unlock()

	logFile, openError := os.OpenFile(transactionLog.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, transactionLogFilePermissions)
	if openError != nil {
		return openError
	}
	defer func() { _ = logFile.Close() }()

	_, writeError := logFile.Write(append(recordBytes, []byte(recordLineSeparatorConstant)...))
	return writeError
}
