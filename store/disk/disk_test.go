package disk

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/algox402/x402-go"
)

func TestSaveAndOpen(t *testing.T) {
	ctx := context.Background()
	p, err := New(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	handle, err := p.Save(ctx, "../../report.pdf", strings.NewReader("pdf bytes"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Ext(handle) != ".pdf" || !strings.HasPrefix(handle, "report-") {
		t.Errorf("handle %q should keep the base name and extension", handle)
	}

	rc, err := p.Open(ctx, handle)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "pdf bytes" {
		t.Errorf("read %q", data)
	}

	other, err := p.Save(ctx, "report.pdf", strings.NewReader("again"))
	if err != nil {
		t.Fatalf("second Save: %v", err)
	}
	if other == handle {
		t.Error("handles should be unique")
	}
}

func TestOpenMissing(t *testing.T) {
	p, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, handle := range []string{"", "nope.txt", "../etc/passwd", "..", "a/b.txt"} {
		if _, err := p.Open(context.Background(), handle); !errors.Is(err, x402.ErrContentNotFound) {
			t.Errorf("Open(%q) = %v, want ErrContentNotFound", handle, err)
		}
	}
}
