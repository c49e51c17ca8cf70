package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	if err := base.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if base.ID == "" {
		t.Fatal("expected base model ID to be generated")
	}
	if version := uuid.MustParse(base.ID).Version(); version != 7 {
		t.Fatalf("expected a version 7 UUID, got version %d", version)
	}
}

func TestBaseModelBeforeCreateKeepsExistingID(t *testing.T) {
	base := BaseModel{ID: "fixed"}
	if err := base.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if base.ID != "fixed" {
		t.Fatalf("expected ID to be preserved, got %q", base.ID)
	}
}

func TestAPIRequestBeforeCreateGeneratesID(t *testing.T) {
	var req APIRequest
	if err := req.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if req.ID == "" {
		t.Fatal("expected api request ID to be generated")
	}
}

func TestAPIRequestIDsFollowInsertOrder(t *testing.T) {
	var first, second APIRequest
	if err := first.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if err := second.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if first.ID >= second.ID {
		t.Fatalf("expected %q to sort before %q", first.ID, second.ID)
	}
}

func TestAPIKeyExpired(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Hour)

	cases := []struct {
		name    string
		expires *time.Time
		want    bool
	}{
		{"no expiry", nil, false},
		{"past", &past, true},
		{"exactly now", &now, true},
		{"future", &future, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key := APIKey{ExpiresAt: tc.expires}
			if got := key.Expired(now); got != tc.want {
				t.Fatalf("expected expired=%v, got %v", tc.want, got)
			}
		})
	}
}

func TestTableNames(t *testing.T) {
	if got := (APIKey{}).TableName(); got != "api_keys" {
		t.Fatalf("unexpected api key table %q", got)
	}
	if got := (APIRequest{}).TableName(); got != "api_requests" {
		t.Fatalf("unexpected api request table %q", got)
	}
}
