/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns a panic into a report file, a recovery template and a
// non-zero exit.
package crash

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	applog "thumbtory/internal/log"
	"thumbtory/internal/storage"
	"thumbtory/internal/telemetry"
	"thumbtory/internal/version"
)

// exitFn is swapped out by tests.
var exitFn = os.Exit

// Saver writes the open scene somewhere safe. *editor.Session implements it.
type Saver interface {
	CrashSave() (string, error)
}

// Recover captures a panic, logs it with the stack, writes a crash report,
// asks saver (if any) for a recovery template and exits with code 2.
// root is the workspace root or empty.
//
// Usage: defer crash.Recover(root, session)
func Recover(root string, saver Saver) {
	r := recover()
	if r == nil {
		return
	}
	l := applog.WithComponent("crash")
	stack := debug.Stack()
	l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

	var recovered string
	if saver != nil {
		if path, err := saver.CrashSave(); err != nil {
			l.Error("crash save failed", slog.Any("err", err))
		} else {
			recovered = path
			l.Info("recovery template written", slog.String("path", path))
		}
	}
	reportPath, err := writeReport(root, recovered, r, stack)
	if err != nil {
		l.Error("write crash report failed", slog.Any("err", err))
	}
	telemetry.Event(telemetry.EventCrash, map[string]any{"recovered": recovered != ""})

	_, _ = fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath)
	if recovered != "" {
		_, _ = fmt.Fprintf(os.Stderr, "Your thumbnail was saved to: %s\n", recovered)
	}
	_, _ = fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH)
	exitFn(2)
}

// reportDir prefers the workspace backups folder, then the user cache dir.
func reportDir(root string) string {
	if root != "" {
		return filepath.Join(root, storage.BackupsDirName)
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "thumbtory")
	}
	return os.TempDir()
}

func writeReport(root, recovered string, panicVal any, stack []byte) (string, error) {
	dir := reportDir(root)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		dir = os.TempDir()
	}
	now := time.Now()
	path := filepath.Join(dir, fmt.Sprintf("crash-%s.log", now.Format("20060102-150405")))

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "Thumbtory Crash Report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", now.Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if root != "" {
		_, _ = fmt.Fprintf(&buf, "Workspace: %s\n", root)
	}
	if recovered != "" {
		_, _ = fmt.Fprintf(&buf, "Recovery: %s\n", recovered)
	}
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return path, err
	}
	// opt-in upload
	telemetry.UploadCrash(buf.Bytes())
	return path, nil
}
