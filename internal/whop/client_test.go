package whop

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/griphq/retention-engine/internal/domain"
)

func strp(s string) *string { return &s }

func TestListMembershipsPaginates(t *testing.T) {
	var pagesServed []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		if r.URL.Path != "/memberships" {
			t.Errorf("path = %q", r.URL.Path)
		}
		pageNum := r.URL.Query().Get("page")
		pagesServed = append(pagesServed, pageNum)

		current := 1
		if pageNum == "2" {
			current = 2
		}
		json.NewEncoder(w).Encode(map[string]any{
			"pagination": map[string]int{"current_page": current, "total_page": 2},
			"data": []map[string]any{
				{"id": "mem_" + pageNum, "status": "active", "user": map[string]any{"id": "user_" + pageNum, "username": "u"}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", time.Second)
	memberships, err := c.ListMemberships(context.Background(), "biz_123")
	if err != nil {
		t.Fatalf("ListMemberships: %v", err)
	}
	if len(memberships) != 2 {
		t.Fatalf("got %d memberships, want 2", len(memberships))
	}
	if len(pagesServed) != 2 {
		t.Fatalf("pages served = %v, want both pages fetched", pagesServed)
	}
	if memberships[0].ID != "mem_1" || memberships[1].ID != "mem_2" {
		t.Errorf("memberships = %+v", memberships)
	}
}

func TestListMembershipsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid api key"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "bad-key", time.Second)
	if _, err := c.ListMemberships(context.Background(), "biz_123"); err == nil {
		t.Fatal("expected error for 401 response")
	}
}

func TestListMembersCarriesSpend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/members" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"pagination": map[string]int{"current_page": 1, "total_page": 1},
			"data": []map[string]any{
				{"user": map[string]any{"id": "user_1", "username": "u"}, "usd_total_spent": 14900},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", time.Second)
	members, err := c.ListMembers(context.Background(), "biz_123")
	if err != nil {
		t.Fatalf("ListMembers: %v", err)
	}
	if len(members) != 1 || members[0].USDTotalSpent != 14900 {
		t.Fatalf("members = %+v", members)
	}
}

func TestParseTimestamp(t *testing.T) {
	unix := strp("1767225600") // 2026-01-01T00:00:00Z
	if got := ParseTimestamp(unix); got.Year() != 2026 || got.Month() != time.January {
		t.Errorf("unix seconds parsed to %v", got)
	}

	iso := strp("2026-03-15T09:30:00Z")
	want := time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)
	if got := ParseTimestamp(iso); !got.Equal(want) {
		t.Errorf("ISO parsed to %v, want %v", got, want)
	}

	if got := ParseTimestamp(nil); !got.IsZero() {
		t.Errorf("nil parsed to %v, want zero", got)
	}
	if got := ParseTimestamp(strp("garbage")); !got.IsZero() {
		t.Errorf("garbage parsed to %v, want zero", got)
	}
}

func TestMapStatus(t *testing.T) {
	tests := []struct {
		in   string
		want domain.SubscriptionStatus
	}{
		{"active", domain.SubscriptionActive},
		{"trialing", domain.SubscriptionTrialing},
		{"past_due", domain.SubscriptionPastDue},
		{"unresolved", domain.SubscriptionPastDue},
		{"canceled", domain.SubscriptionCancelled},
		{"canceling", domain.SubscriptionCancelled},
		{"completed", domain.SubscriptionCancelled},
		{"expired", domain.SubscriptionCancelled},
		{"some_future_status", domain.SubscriptionCancelled},
	}
	for _, tt := range tests {
		if got := MapStatus(tt.in); got != tt.want {
			t.Errorf("MapStatus(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
