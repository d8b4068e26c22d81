package storage_test

import (
	"testing"

	"contestoj/internal/common/storage"
)

func TestNewMinIOStorage_RequiresSettings(t *testing.T) {
	tests := []struct {
		name string
		cfg  storage.MinIOConfig
	}{
		{"endpoint", storage.MinIOConfig{AccessKey: "a", SecretKey: "s"}},
		{"access key", storage.MinIOConfig{Endpoint: "localhost:9000", SecretKey: "s"}},
		{"secret key", storage.MinIOConfig{Endpoint: "localhost:9000", AccessKey: "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := storage.NewMinIOStorage(tt.cfg); err == nil {
				t.Fatalf("expected error when %s is missing", tt.name)
			}
		})
	}
}

func TestNewMinIOStorage_NoNetworkOnCreate(t *testing.T) {
	s, err := storage.NewMinIOStorage(storage.MinIOConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "minio",
		SecretKey: "minio123",
	})
	if err != nil {
		t.Fatalf("NewMinIOStorage: %v", err)
	}
	var _ storage.ObjectStorage = s
}
