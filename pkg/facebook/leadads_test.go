package facebook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		AccessToken:  "token",
		PageID:       "page-1",
		VerifyToken:  "sesame",
		GraphBaseURL: baseURL,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestVerifyToken(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, "https://graph.example.com")
	if !c.VerifyToken("sesame") {
		t.Fatal("matching token rejected")
	}
	if c.VerifyToken("wrong") || c.VerifyToken("") {
		t.Fatal("mismatched or empty token accepted")
	}
}

func TestFetchLeadMapsFields(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("access_token"); got != "token" {
			t.Errorf("access_token = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "lg-1",
			"created_time": "2026-08-20T11:00:00+0000",
			"field_data": [
				{"name": "full_name", "values": ["Ravi Kumar"]},
				{"name": "phone_number", "values": ["9812345678"]},
				{"name": "email", "values": ["ravi@example.com"]},
				{"name": "company_name", "values": ["Kumar Traders"]},
				{"name": "product_interest", "values": ["CRM software"]},
				{"name": "favourite_colour", "values": ["neela"]}
			]
		}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	lead, err := c.FetchLead(context.Background(), "lg-1")
	if err != nil {
		t.Fatalf("FetchLead: %v", err)
	}

	if lead.LeadgenID != "lg-1" {
		t.Fatalf("leadgen id = %q", lead.LeadgenID)
	}
	if lead.FirstName != "Ravi" || lead.LastName != "Kumar" {
		t.Fatalf("name split = %q / %q, want Ravi / Kumar", lead.FirstName, lead.LastName)
	}
	if lead.FullName() != "Ravi Kumar" {
		t.Fatalf("full name = %q", lead.FullName())
	}
	if lead.Phone != "9812345678" || lead.Email != "ravi@example.com" {
		t.Fatalf("contact fields = %q / %q", lead.Phone, lead.Email)
	}
	if lead.Company != "Kumar Traders" || lead.Interest != "CRM software" {
		t.Fatalf("company/interest = %q / %q", lead.Company, lead.Interest)
	}
}

func TestFetchLeadGraphError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"invalid token"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if _, err := c.FetchLead(context.Background(), "lg-1"); err == nil {
		t.Fatal("FetchLead on 401: got nil error")
	}
}

func TestTestConnection(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/page-1" {
			t.Errorf("path = %q, want /page-1", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"id": "page-1", "name": "Vaani Sales"}`))
	}))
	defer srv.Close()

	if err := newTestClient(t, srv.URL).TestConnection(context.Background()); err != nil {
		t.Fatalf("TestConnection: %v", err)
	}
}
