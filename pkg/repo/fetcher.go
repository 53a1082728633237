// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package repo fetches repositories to local disk for parsing.
package repo

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	rgerr "github.com/kraklabs/repograph/internal/errors"
)

// fetchTimeout bounds one clone.
const fetchTimeout = 120 * time.Second

var (
	// validGitURLPattern matches git URLs we accept (https, ssh, file).
	validGitURLPattern = regexp.MustCompile(`^(https?://|git@|ssh://|file://)[\w.\-@:/%]+$`)

	// dangerousCharsPattern matches characters usable for command injection.
	dangerousCharsPattern = regexp.MustCompile(`[;&|$` + "`" + `\n\r\\]`)
)

// Fetcher clones repositories into temp directories it owns. Close removes
// everything it created.
type Fetcher struct {
	logger     *slog.Logger
	tempDirs   []string
	tempDirsMu sync.Mutex
}

// NewFetcher creates a repository fetcher.
func NewFetcher(logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{logger: logger}
}

// Fetch shallow-clones the repository and returns the checkout path. An
// empty branch clones the remote default.
func (f *Fetcher) Fetch(ctx context.Context, gitURL, branch string) (string, error) {
	if err := ValidateGitURL(gitURL); err != nil {
		return "", rgerr.Wrap(rgerr.KindInvalidInput, "invalid git url", err)
	}

	// TMP_DIR overrides the clone parent directory for hosts where the
	// system temp filesystem is too small for checkouts.
	tmpDir, err := os.MkdirTemp(os.Getenv("TMP_DIR"), "repograph-clone-*")
	if err != nil {
		return "", rgerr.Wrap(rgerr.KindFetchFailed, "create temp dir", err)
	}

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	args := []string{"clone", "--depth", "1", "--quiet"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, gitURL, tmpDir)

	logURL := sanitizeURL(gitURL)
	f.logger.Info("repo.clone.start", "url", logURL, "branch", branch, "temp_dir", tmpDir)

	// #nosec G204 - gitURL is validated above to prevent command injection
	cmd := exec.CommandContext(ctx, "git", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		if ctx.Err() != nil {
			return "", rgerr.Wrap(rgerr.KindTimeout, fmt.Sprintf("clone of %s timed out", logURL), ctx.Err())
		}
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			msg = err.Error()
		}
		return "", rgerr.New(rgerr.KindFetchFailed, fmt.Sprintf("git clone failed: %s", msg))
	}

	f.logger.Info("repo.clone.done", "url", logURL, "temp_dir", tmpDir)
	f.tempDirsMu.Lock()
	f.tempDirs = append(f.tempDirs, tmpDir)
	f.tempDirsMu.Unlock()
	return tmpDir, nil
}

// Close removes every checkout this fetcher created.
func (f *Fetcher) Close() error {
	f.tempDirsMu.Lock()
	defer f.tempDirsMu.Unlock()
	var lastErr error
	for _, dir := range f.tempDirs {
		if err := os.RemoveAll(dir); err != nil {
			f.logger.Warn("repo.cleanup.failed", "dir", dir, "error", err)
			lastErr = err
		}
	}
	f.tempDirs = nil
	return lastErr
}

// ValidateGitURL rejects URLs that could smuggle shell metacharacters or
// credentials into the clone command.
func ValidateGitURL(gitURL string) error {
	if gitURL == "" {
		return fmt.Errorf("git URL is empty")
	}
	if dangerousCharsPattern.MatchString(gitURL) {
		return fmt.Errorf("git URL contains dangerous characters")
	}
	switch {
	case strings.HasPrefix(gitURL, "http://"), strings.HasPrefix(gitURL, "https://"):
		parsed, err := url.Parse(gitURL)
		if err != nil {
			return fmt.Errorf("parse git URL: %w", err)
		}
		if parsed.Host == "" {
			return fmt.Errorf("git URL missing host")
		}
		if parsed.User != nil {
			if _, hasPassword := parsed.User.Password(); hasPassword {
				return fmt.Errorf("git URL should not contain embedded password")
			}
		}
		return nil
	case strings.HasPrefix(gitURL, "git@"), strings.HasPrefix(gitURL, "ssh://"), strings.HasPrefix(gitURL, "file://"):
		if !validGitURLPattern.MatchString(gitURL) {
			return fmt.Errorf("invalid git URL format")
		}
		return nil
	}
	return fmt.Errorf("unsupported git URL protocol: must be https://, git@, ssh://, or file://")
}

// sanitizeURL strips query params and userinfo before logging.
func sanitizeURL(gitURL string) string {
	parsed, err := url.Parse(gitURL)
	if err != nil {
		return gitURL
	}
	parsed.RawQuery = ""
	if parsed.User != nil {
		parsed.User = url.User("***")
	}
	return parsed.String()
}
