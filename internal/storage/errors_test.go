package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/minio/minio-go/v7"
)

func TestIsNoSuchKey(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"minio NoSuchKey", minio.ErrorResponse{Code: "NoSuchKey"}, true},
		{"minio NotFound", minio.ErrorResponse{Code: "NotFound"}, true},
		{"minio access denied", minio.ErrorResponse{Code: "AccessDenied"}, false},
		{"wrapped minio error", fmt.Errorf("remove: %w", minio.ErrorResponse{Code: "NoSuchKey"}), true},
		{"stringly gateway error", errors.New("The specified key does not exist."), true},
		{"unrelated error", errors.New("connection refused"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsNoSuchKey(tc.err); got != tc.want {
				t.Fatalf("expected %v got %v", tc.want, got)
			}
		})
	}
}
