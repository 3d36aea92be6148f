package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/algox402/x402-go"
	"github.com/algox402/x402-go/http/internal/helpers"
	"github.com/algox402/x402-go/store"
)

const defaultMimeType = "application/octet-stream"

var mimeTypes = map[string]string{
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".mp4":  "video/mp4",
	".mp3":  "audio/mpeg",
	".txt":  "text/plain",
}

// MimeType returns the content type for a file name from its extension.
func MimeType(name string) string {
	if t, ok := mimeTypes[strings.ToLower(path.Ext(name))]; ok {
		return t
	}
	return defaultMimeType
}

// ServeFile streams the content stored under handle. It returns
// x402.ErrContentNotFound, before writing anything, when the handle is unknown.
func ServeFile(ctx context.Context, w http.ResponseWriter, provider store.ContentProvider, handle string) error {
	rc, err := provider.Open(ctx, handle)
	if err != nil {
		return err
	}
	defer rc.Close()
	return streamFile(w, rc, handle)
}

func streamFile(w http.ResponseWriter, r io.Reader, handle string) error {
	name := path.Base(handle)
	w.Header().Set("Content-Type", MimeType(name))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("stream %s: %w", name, err)
	}
	return nil
}

// redirectInstruction is returned to browsers in place of a redirect, since
// a paid fetch from page script cannot follow a cross-origin redirect.
type redirectInstruction struct {
	Redirect bool   `json:"redirect"`
	Link     string `json:"link"`
}

// ServeRedirect sends the client to target: a JSON instruction for browsers
// and a 302 for everyone else.
func ServeRedirect(w http.ResponseWriter, r *http.Request, target string) {
	if helpers.IsBrowser(r) {
		helpers.SendJSON(w, http.StatusOK, redirectInstruction{Redirect: true, Link: target})
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// contentHandler delivers a link's content once the gate lets the request through.
func contentHandler(link *store.Link, provider store.ContentProvider, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case link.ContentType == store.ContentFile && link.ContentPath != "":
			rc, err := provider.Open(r.Context(), link.ContentPath)
			if errors.Is(err, x402.ErrContentNotFound) {
				helpers.SendError(w, http.StatusNotFound, "File not found")
				return
			}
			if err != nil {
				logger.Error("failed to open file", "link", link.ID, "error", err)
				helpers.SendError(w, http.StatusInternalServerError, "Internal server error")
				return
			}
			defer rc.Close()
			if err := streamFile(w, rc, link.ContentPath); err != nil {
				// Headers are already out; the response is cut short.
				logger.Error("failed to stream file", "link", link.ID, "error", err)
			}
		case link.ContentType == store.ContentURL && link.ContentPath != "":
			ServeRedirect(w, r, link.ContentPath)
		default:
			helpers.SendError(w, http.StatusNotFound, "Content not available")
		}
	})
}
