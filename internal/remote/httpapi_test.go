package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wanderlog/wandersync/internal/trip"
)

func TestClientPull(t *testing.T) {
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	var gotSince string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/changes" || r.Method != http.MethodGet {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotSince = r.URL.Query().Get("since")
		_ = json.NewEncoder(w).Encode(pullResponse{Records: []Record{
			{TripID: "trip-1", Trip: &trip.Trip{ID: "trip-1", Title: "Kyoto"}, ModifiedAt: now},
		}})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	records, err := client.Pull(context.Background(), now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(records) != 1 || records[0].TripID != "trip-1" {
		t.Errorf("records = %+v", records)
	}
	if gotSince == "" {
		t.Error("since parameter not sent")
	}
}

func TestClientPushSendsBearerToken(t *testing.T) {
	var gotAuth string
	var gotOps int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var body pushRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotOps = len(body.Operations)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	client.Token = func(ctx context.Context) (string, error) { return "secret", nil }

	err := client.Push(context.Background(), []PushOp{
		{TripID: "trip-1", Op: "create", ModifiedAt: time.Now()},
		{TripID: "trip-2", Op: "delete", ModifiedAt: time.Now()},
	})
	if err != nil {
		t.Fatalf("push failed: %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotOps != 2 {
		t.Errorf("operations sent = %d, want 2", gotOps)
	}
}

func TestClientErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorCode
	}{
		{http.StatusUnauthorized, CodeUnauthorized},
		{http.StatusForbidden, CodeUnauthorized},
		{http.StatusInsufficientStorage, CodeQuotaExceeded},
		{http.StatusTooManyRequests, CodeQuotaExceeded},
		{http.StatusInternalServerError, CodeUnavailable},
		{http.StatusTeapot, CodeUnknown},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		client := NewClient(srv.URL)
		err := client.Push(context.Background(), []PushOp{{TripID: "trip-1", Op: "create"}})
		srv.Close()

		if err == nil {
			t.Errorf("status %d: expected error", tt.status)
			continue
		}
		re, ok := err.(*Error)
		if !ok || re.Code != tt.want {
			t.Errorf("status %d: error = %v, want code %v", tt.status, err, tt.want)
		}
	}
}

func TestClientAccountStatus(t *testing.T) {
	tests := []struct {
		body string
		want AccountStatus
	}{
		{`{"status":"available"}`, StatusAvailable},
		{`{"status":"noAccount"}`, StatusNoAccount},
		{`{"status":"restricted"}`, StatusRestricted},
		{`{"status":"quotaExceeded"}`, StatusQuotaExceeded},
		{`{"status":"something-new"}`, StatusUnknown},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/account" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			_, _ = w.Write([]byte(tt.body))
		}))

		client := NewClient(srv.URL)
		got, err := client.AccountStatus(context.Background())
		srv.Close()

		if err != nil {
			t.Errorf("%s: %v", tt.body, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: status = %v, want %v", tt.body, got, tt.want)
		}
	}
}
