package extract

import (
	"errors"
	"strings"
	"testing"

	svcerrors "github.com/aviroy619/critical-css-service/pkg/errors"
)

func TestValidateURL(t *testing.T) {
	valid := []string{
		"https://shop.example.com/",
		"http://localhost:3000/collections/all",
		"https://example.com/products/item?variant=1",
	}
	for _, u := range valid {
		if err := ValidateURL(u); err != nil {
			t.Errorf("Expected %q to validate, got %v", u, err)
		}
	}

	invalid := []string{
		"",
		"ftp://example.com/style.css",
		"file:///etc/passwd",
		"/relative/path",
		"javascript:alert(1)",
	}
	for _, u := range invalid {
		err := ValidateURL(u)
		if err == nil {
			t.Errorf("Expected %q to be rejected", u)
			continue
		}
		if !errors.Is(err, svcerrors.ErrInvalidURL) {
			t.Errorf("Expected ErrInvalidURL for %q, got %v", u, err)
		}
	}
}

func TestScriptShape(t *testing.T) {
	// The collector script must be a self-invoking expression so Evaluate
	// returns its value directly.
	trimmed := strings.TrimSpace(criticalCSSScript)
	if !strings.HasPrefix(trimmed, "(() => {") || !strings.HasSuffix(trimmed, "})()") {
		t.Error("Collector script is not a self-invoking arrow expression")
	}
	for _, marker := range []string{"getBoundingClientRect", "document.styleSheets", "MEDIA_RULE", "FONT_FACE_RULE"} {
		if !strings.Contains(criticalCSSScript, marker) {
			t.Errorf("Collector script missing %s handling", marker)
		}
	}
}
