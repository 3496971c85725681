package capture

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// dirDevice replays the image files of a directory in name order, wrapping
// around at the end. It is used for kiosk demos and replaying recorded
// sessions.
type dirDevice struct {
	dir string
	now func() time.Time

	mu    sync.Mutex
	files []string // nil while closed
	next  int
}

func (d *dirDevice) Open(_ context.Context) error {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return fmt.Errorf("capture: open %s: %w", d.dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !isImage(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(d.dir, e.Name()))
	}
	if len(files) == 0 {
		return fmt.Errorf("capture: open %s: no image files", d.dir)
	}
	sort.Strings(files)

	d.mu.Lock()
	d.files, d.next = files, 0
	d.mu.Unlock()
	return nil
}

func (d *dirDevice) Capture(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	d.mu.Lock()
	if d.files == nil {
		d.mu.Unlock()
		return Frame{}, ErrClosed
	}
	path := d.files[d.next]
	d.next = (d.next + 1) % len(d.files)
	d.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return Frame{}, fmt.Errorf("capture: read %s: %w", path, err)
	}
	return Frame{
		CapturedAt:  d.now(),
		ContentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(path))),
		Data:        data,
	}, nil
}

func (d *dirDevice) Close() error {
	d.mu.Lock()
	d.files = nil
	d.mu.Unlock()
	return nil
}

func isImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}
