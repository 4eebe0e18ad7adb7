package storage

import (
	"context"
	"testing"

	"github.com/friendchat/backend/internal/config"
)

func TestS3StorageReferenceRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		key     string
		want    string
	}{
		{name: "bare key", key: "files/1-2-cat.png", want: "files/1-2-cat.png"},
		{name: "public url", baseURL: "https://cdn.example.com/chat", key: "files/1-2-cat.png", want: "https://cdn.example.com/chat/files/1-2-cat.png"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := &S3Storage{baseURL: tc.baseURL}
			ref := s.reference(tc.key)
			if ref != tc.want {
				t.Fatalf("reference = %q, want %q", ref, tc.want)
			}
			key, ok := s.key(ref)
			if !ok || key != tc.key {
				t.Fatalf("key(%q) = %q, %v", ref, key, ok)
			}
		})
	}
}

func TestS3StorageKeyRejectsForeignRefs(t *testing.T) {
	s := &S3Storage{baseURL: "https://cdn.example.com"}
	for _, ref := range []string{
		"",
		"files/cat.png",
		"https://elsewhere.example.com/files/cat.png",
		"https://cdn.example.com/other/cat.png",
		"https://cdn.example.com/files/../secrets",
		"https://cdn.example.com/files/nested/cat.png",
	} {
		if key, ok := s.key(ref); ok {
			t.Fatalf("expected %q to be rejected, got key %q", ref, key)
		}
	}
}

func TestNewS3StorageRequiresBucket(t *testing.T) {
	if _, err := NewS3Storage(context.Background(), config.ObjectStoreConfig{Region: "us-east-1"}); err == nil {
		t.Fatal("expected error without a bucket")
	}
}
