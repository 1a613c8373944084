package state

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"
)

const (
	lockAcquireRetryIntervalConstant   = 50 * time.Millisecond
	lockAcquireTimeoutTemplateConstant = "could not acquire lock on %s within %s"
)

// fileLock provides cross-process mutual exclusion using flock(2).
type fileLock struct {
	path string
	file *os.File
}

func newFileLock(path string) *fileLock {
	return &fileLock{path: path}
}

// acquire takes the lock in the requested mode, retrying until the bounded wait elapses.
func (lock *fileLock) acquire(exclusive bool, waitCeiling time.Duration) error {
	lockFile, openError := os.OpenFile(lock.path, os.O_CREATE|os.O_RDWR, 0o644)
	if openError != nil {
		return fmt.Errorf("open lock file: %w", openError)
	}

	lockMode := syscall.LOCK_SH
	if exclusive {
		lockMode = syscall.LOCK_EX
	}

	deadline := time.Now().Add(waitCeiling)
	for {
		flockError := syscall.Flock(int(lockFile.Fd()), lockMode|syscall.LOCK_NB)
		if flockError == nil {
			lock.file = lockFile
			return nil
		}
		if !errors.Is(flockError, syscall.EWOULDBLOCK) {
			_ = lockFile.Close()
			return fmt.Errorf("flock: %w", flockError)
		}
		if time.Now().After(deadline) {
			_ = lockFile.Close()
			return fmt.Errorf(lockAcquireTimeoutTemplateConstant, lock.path, waitCeiling)
		}
		time.Sleep(lockAcquireRetryIntervalConstant)
	}
}

// release drops the lock and closes the lock file.
func (lock *fileLock) release() error {
	if lock.file == nil {
		return nil
	}
	flockError := syscall.Flock(int(lock.file.Fd()), syscall.LOCK_UN)
	closeError := lock.file.Close()
	lock.file = nil
	if flockError != nil {
		return fmt.Errorf("funlock: %w", flockError)
	}
	return closeError
}
