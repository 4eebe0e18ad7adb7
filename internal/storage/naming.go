// Package storage persists uploaded chat images on local disk or in S3.
package storage

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

// ImageStore saves uploaded images and confirms references to them. Delete of
// an unknown reference is not an error.
type ImageStore interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
	Exists(ctx context.Context, ref string) (bool, error)
	Delete(ctx context.Context, ref string) error
}

// UploadName builds a unique file name of the form <unix-ms>-<random>-<original>.
func UploadName(original string, now time.Time) string {
	return fmt.Sprintf("%d-%d-%s", now.UnixMilli(), rand.Intn(1_000_000_000), sanitize(original))
}

func sanitize(original string) string {
	base := filepath.Base(strings.ReplaceAll(original, `\`, "/"))
	var b strings.Builder
	for _, r := range base {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "upload"
	}
	return out
}

var (
	_ ImageStore = (*LocalStorage)(nil)
	_ ImageStore = (*S3Storage)(nil)
)
