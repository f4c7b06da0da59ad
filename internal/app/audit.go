package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"filedepot/internal/core"
)

// fileAuditor appends one line per recorded action to an audit log:
//
//	<timestamp>\t<principal>\t<message>
//
// The audit trail is separate from the operational log so it survives log
// level changes and can be reviewed on its own.
type fileAuditor struct {
	w io.Writer
}

func (a *fileAuditor) Record(principal, message string) {
	ts := time.Now().UTC().Format("2006-01-02T15:04:05Z")
	fmt.Fprintf(a.w, "%s\t%s\t%s\n", ts, principal, message)
}

// newAuditor opens logDir/audit.log for appending and returns an Auditor
// backed by it, plus the open file for cleanup.
func newAuditor(logDir string) (core.Auditor, *os.File, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	path := filepath.Join(logDir, "audit.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening audit log: %w", err)
	}
	return &fileAuditor{w: f}, f, nil
}

var _ core.Auditor = (*fileAuditor)(nil)
