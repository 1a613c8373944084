package state

import (
	"encoding/json"
	"os"
	"time"

	"go.uber.org/zap"
)

const (
	lockWaitCeilingConstant          = 5 * time.Second
	temporaryFileSuffixConstant      = ".tmp"
	lockFileSuffixConstant           = ".lock"
	stateReadFailureMessageConstant  = "failed to read state file; treating as empty"
	stateWriteFailureMessageConstant = "failed to write state file"
	logFieldStatePathConstant        = "path"
	stateFilePermissionsConstant     = 0o644
)

// Store atomically reads and writes a JSON state file guarded by a file lock.
type Store struct {
	path   string
	logger *zap.Logger
}

// NewStore constructs a Store for the given state file path.
func NewStore(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: path, logger: logger}
}

// Read returns the parsed state under a shared lock with a bounded wait.
// Any lock, parse, or I/O failure yields an empty state and a logged error;
// callers treat the result as "no prior state", never as fatal.
func (store *Store) Read() map[string]any {
	if _, statError := os.Stat(store.path); statError != nil {
		return map[string]any{}
	}

	stateLock := newFileLock(store.path + lockFileSuffixConstant)
	if lockError := stateLock.acquire(false, lockWaitCeilingConstant); lockError != nil {
		store.logReadFailure(lockError)
		return map[string]any{}
	}
	defer func() { _ = stateLock.release() }()

	stateBytes, readError := os.ReadFile(store.path)
	if readError != nil {
		store.logReadFailure(readError)
		return map[string]any{}
	}
	if len(stateBytes) == 0 {
		return map[string]any{}
	}

	parsedState := map[string]any{}
	if unmarshalError := json.Unmarshal(stateBytes, &parsedState); unmarshalError != nil {
		store.logReadFailure(unmarshalError)
		return map[string]any{}
	}
	return parsedState
}

// Write serializes the state to a temporary file and atomically replaces the
// target under an exclusive lock. The temporary file is removed afterward
// regardless of outcome, so a crash leaves either the prior or the new state.
func (store *Store) Write(state map[string]any) error {
	temporaryPath := store.path + temporaryFileSuffixConstant
	defer func() { _ = os.Remove(temporaryPath) }()

	stateBytes, marshalError := json.MarshalIndent(state, "", "  ")
	if marshalError != nil {
		store.logWriteFailure(marshalError)
		return marshalError
	}

	if writeError := os.WriteFile(temporaryPath, stateBytes, stateFilePermissionsConstant); writeError != nil {
		store.logWriteFailure(writeError)
		return writeError
	}

	stateLock := newFileLock(store.path + lockFileSuffixConstant)
	if lockError := stateLock.acquire(true, lockWaitCeilingConstant); lockError != nil {
		store.logWriteFailure(lockError)
		return lockError
	}
	defer func() { _ = stateLock.release() }()

	if renameError := os.Rename(temporaryPath, store.path); renameError != nil {
		store.logWriteFailure(renameError)
		return renameError
	}
	return nil
}

func (store *Store) logReadFailure(failure error) {
	store.logger.Error(stateReadFailureMessageConstant, zap.String(logFieldStatePathConstant, store.path), zap.Error(failure))
}

func (store *Store) logWriteFailure(failure error) {
	store.logger.Error(stateWriteFailureMessageConstant, zap.String(logFieldStatePathConstant, store.path), zap.Error(failure))
}
