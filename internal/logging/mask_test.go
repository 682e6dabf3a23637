package logging

import (
	"net/http"
	"testing"
)

func TestMaskAuthorization(t *testing.T) {
	got := MaskAuthorization("Bearer abcdef1234")
	want := "Bearer ****1234"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestMaskHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Basic dXNlcjpwYXNz")
	h.Set("X-Api-Key", "sk_test_987654")
	h.Set("Content-Type", "application/json")

	masked := MaskHeaders(h)
	if masked["Authorization"] != "Basic ****YXNz" {
		t.Fatalf("unexpected authorization mask %q", masked["Authorization"])
	}
	if masked["X-Api-Key"] != "****7654" {
		t.Fatalf("unexpected api key mask %q", masked["X-Api-Key"])
	}
	if masked["Content-Type"] != "application/json" {
		t.Fatalf("content type should pass through, got %q", masked["Content-Type"])
	}
}

func TestMaskJSON(t *testing.T) {
	input := map[string]any{
		"card_number": "4242424242424242",
		"amount":      float64(1000),
		"nested": map[string]any{
			"access_token": "tok_12345678",
		},
		"items": []any{map[string]any{"email": "a@b.co"}},
	}
	masked := MaskJSON(input)
	if masked["card_number"] != "****4242" {
		t.Fatalf("expected masked card number, got %v", masked["card_number"])
	}
	if masked["amount"] != float64(1000) {
		t.Fatalf("amount should pass through, got %v", masked["amount"])
	}
	nested := masked["nested"].(map[string]any)
	if nested["access_token"] != "****5678" {
		t.Fatalf("expected masked token, got %v", nested["access_token"])
	}
	item := masked["items"].([]any)[0].(map[string]any)
	if item["email"] != "****b.co" {
		t.Fatalf("expected masked email, got %v", item["email"])
	}
}

func TestMaskRawJSONNonObject(t *testing.T) {
	got := MaskRawJSON([]byte("<html>oops</html>"))
	m, ok := got.(map[string]any)
	if !ok || m["unparsed_body_length"] != 17 {
		t.Fatalf("unexpected result %#v", got)
	}
}
