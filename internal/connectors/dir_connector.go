package connectors

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"

	"mailorder/internal"
)

// DirConnector reads .eml files from a local directory, oldest first. The
// file name stands in for the Message-ID when the header is missing.
type DirConnector struct{}

func (DirConnector) FetchInbox(ctx context.Context, dir string, max int) ([]internal.FetchedMailMessage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		path    string
		modTime time.Time
	}
	var files []candidate
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".eml") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, candidate{path: filepath.Join(dir, e.Name()), modTime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool {
		if !files[i].modTime.Equal(files[j].modTime) {
			return files[i].modTime.Before(files[j].modTime)
		}
		return files[i].path < files[j].path
	})
	if max > 0 && len(files) > max {
		files = files[:max]
	}

	out := make([]internal.FetchedMailMessage, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := os.ReadFile(f.path)
		if err != nil {
			return nil, err
		}

		msg := internal.FetchedMailMessage{
			Provider:   "dir",
			MessageID:  filepath.Base(f.path),
			ReceivedAt: f.modTime.UTC().Format(time.RFC3339),
			Raw:        raw,
		}
		if env, err := enmime.ReadEnvelope(bytes.NewReader(raw)); err == nil {
			if id := strings.TrimSpace(env.GetHeader("Message-ID")); id != "" {
				msg.MessageID = id
			}
			msg.Subject = env.GetHeader("Subject")
			msg.From = env.GetHeader("From")
		}
		out = append(out, msg)
	}
	return out, nil
}
