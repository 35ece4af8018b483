package validate

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// quarantine moves the file out of the processing path into the
// quarantine directory and writes a sibling log entry recording the
// original name, the reason and a timestamp. The key combines the
// timestamp with a random identifier so concurrent quarantines cannot
// collide. A quarantine failure is logged but does not change the
// validation outcome.
func (v *Validator) quarantine(filePath, originalName, reason string) {
	if v.cfg.QuarantineDir == "" {
		v.log.Warn("quarantine directory not configured, leaving file in place",
			"file", originalName, "reason", reason)
		return
	}
	if err := os.MkdirAll(v.cfg.QuarantineDir, 0755); err != nil {
		v.log.Error("create quarantine dir", "dir", v.cfg.QuarantineDir, "error", err)
		return
	}

	now := time.Now().UTC()
	key := fmt.Sprintf("%s-%s-%s",
		now.Format("20060102T150405Z"),
		uuid.NewString()[:8],
		SanitizeFilename(originalName))
	dest := filepath.Join(v.cfg.QuarantineDir, key)

	if err := moveFile(filePath, dest); err != nil {
		v.log.Error("quarantine move failed", "file", originalName, "error", err)
		return
	}

	entry := fmt.Sprintf("file: %s\nreason: %s\ntime: %s\n",
		originalName, reason, now.Format(time.RFC3339))
	if err := os.WriteFile(dest+".log", []byte(entry), 0644); err != nil {
		v.log.Error("write quarantine log", "file", originalName, "error", err)
	}

	v.log.Warn("file quarantined", "file", originalName, "reason", reason, "dest", dest)
}

// moveFile renames src to dest, falling back to copy-and-remove when the
// rename crosses filesystems.
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %q: %w", src, err)
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %q: %w", dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(dest)
		return fmt.Errorf("copy to %q: %w", dest, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	in.Close()
	return os.Remove(src)
}
