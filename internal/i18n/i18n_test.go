package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "LimitReached"); got != "You have reached your usage limit. Upgrade to keep practicing." {
		t.Errorf("T(LimitReached) = %q", got)
	}
	if got := T(ctx, "NotFound"); got != "Not found." {
		t.Errorf("T(NotFound) = %q", got)
	}
}

func TestTranslateSpanish(t *testing.T) {
	ctx := initLang(t, "es")

	if got := T(ctx, "NotFound"); got != "No encontrado." {
		t.Errorf("T(NotFound) = %q, want 'No encontrado.'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "TrialHoursLeft", 1); got != "1 hour left in your free trial." {
		t.Errorf("Tp(TrialHoursLeft, 1) = %q", got)
	}
	if got := Tp(ctx, "TrialHoursLeft", 5); got != "5 hours left in your free trial." {
		t.Errorf("Tp(TrialHoursLeft, 5) = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "MissingFields", map[string]any{"Fields": "question, transcript"})
	if got != "Missing required fields: question, transcript." {
		t.Errorf("Td(MissingFields) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestMiddlewareNegotiates(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatal(err)
	}
	if len(Languages()) != 2 {
		t.Errorf("Languages() = %v, want en and es", Languages())
	}

	var got string
	h := Middleware("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "NotFound")
	}))

	tests := []struct {
		accept string
		want   string
	}{
		{"es-MX,es;q=0.9,en;q=0.5", "No encontrado."},
		{"fr-FR", "Not found."},
		{"", "Not found."},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.accept != "" {
			req.Header.Set("Accept-Language", tt.accept)
		}
		h.ServeHTTP(httptest.NewRecorder(), req)
		if got != tt.want {
			t.Errorf("Accept-Language %q: got %q, want %q", tt.accept, got, tt.want)
		}
	}
}
