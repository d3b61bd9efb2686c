package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	svcerrors "github.com/aviroy619/critical-css-service/pkg/errors"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleDocument(shopID, template string) *Document {
	return &Document{
		ShopID:      shopID,
		Template:    template,
		CSS:         "body{margin:0}.hero{display:flex}",
		ContentHash: "abc123",
		SizeBytes:   33,
		SourceURL:   "https://" + shopID + ".example.com/",
		ViewportW:   1300,
		ViewportH:   900,
		DurationMs:  1200,
		GeneratedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestSaveAndGetDocument(t *testing.T) {
	store := newTestStore(t)

	doc := sampleDocument("shop-1", "product")
	if err := store.SaveDocument(doc); err != nil {
		t.Fatalf("Failed to save document: %v", err)
	}

	got, err := store.GetDocument("shop-1", "product")
	if err != nil {
		t.Fatalf("Failed to get document: %v", err)
	}
	if got.CSS != doc.CSS {
		t.Errorf("CSS mismatch: got %q", got.CSS)
	}
	if got.ContentHash != "abc123" {
		t.Errorf("Expected hash abc123, got %s", got.ContentHash)
	}
	if got.ViewportW != 1300 || got.ViewportH != 900 {
		t.Errorf("Viewport mismatch: %dx%d", got.ViewportW, got.ViewportH)
	}
}

func TestSaveDocumentUpserts(t *testing.T) {
	store := newTestStore(t)

	doc := sampleDocument("shop-1", "product")
	if err := store.SaveDocument(doc); err != nil {
		t.Fatalf("First save failed: %v", err)
	}

	doc.CSS = ".updated{color:red}"
	doc.ContentHash = "def456"
	if err := store.SaveDocument(doc); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	got, err := store.GetDocument("shop-1", "product")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ContentHash != "def456" {
		t.Errorf("Upsert did not replace: hash %s", got.ContentHash)
	}

	docs, _ := store.ListDocuments("shop-1")
	if len(docs) != 1 {
		t.Errorf("Upsert created duplicate rows: %d", len(docs))
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetDocument("nope", "nothing")
	if !errors.Is(err, svcerrors.ErrDocumentNotFound) {
		t.Errorf("Expected ErrDocumentNotFound, got %v", err)
	}
}

func TestListDocuments(t *testing.T) {
	store := newTestStore(t)

	for _, tmpl := range []string{"product", "collection", "index"} {
		if err := store.SaveDocument(sampleDocument("shop-1", tmpl)); err != nil {
			t.Fatalf("Save %s failed: %v", tmpl, err)
		}
	}
	if err := store.SaveDocument(sampleDocument("shop-2", "product")); err != nil {
		t.Fatalf("Save for shop-2 failed: %v", err)
	}

	docs, err := store.ListDocuments("shop-1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(docs) != 3 {
		t.Errorf("Expected 3 documents, got %d", len(docs))
	}
	for _, d := range docs {
		if d.CSS != "" {
			t.Error("List should not include CSS bodies")
		}
	}
}

func TestDeleteDocument(t *testing.T) {
	store := newTestStore(t)

	if err := store.SaveDocument(sampleDocument("shop-1", "product")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.DeleteDocument("shop-1", "product"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.GetDocument("shop-1", "product"); !errors.Is(err, svcerrors.ErrDocumentNotFound) {
		t.Error("Document still present after delete")
	}

	if err := store.DeleteDocument("shop-1", "product"); !errors.Is(err, svcerrors.ErrDocumentNotFound) {
		t.Errorf("Expected ErrDocumentNotFound on double delete, got %v", err)
	}
}

func TestStaleDocuments(t *testing.T) {
	store := newTestStore(t)

	old := sampleDocument("shop-1", "product")
	old.GeneratedAt = time.Now().Add(-48 * time.Hour)
	if err := store.SaveDocument(old); err != nil {
		t.Fatalf("Save old failed: %v", err)
	}
	if err := store.SaveDocument(sampleDocument("shop-1", "index")); err != nil {
		t.Fatalf("Save fresh failed: %v", err)
	}

	stale, err := store.StaleDocuments(24 * time.Hour)
	if err != nil {
		t.Fatalf("StaleDocuments failed: %v", err)
	}
	if len(stale) != 1 {
		t.Fatalf("Expected 1 stale document, got %d", len(stale))
	}
	if stale[0].Template != "product" {
		t.Errorf("Wrong document flagged stale: %s", stale[0].Template)
	}
}

func TestRecordAndListErrors(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < 3; i++ {
		if err := store.RecordError("shop-1", "product", "navigation timeout"); err != nil {
			t.Fatalf("RecordError failed: %v", err)
		}
	}

	errs, err := store.RecentErrors("shop-1", "product", 10)
	if err != nil {
		t.Fatalf("RecentErrors failed: %v", err)
	}
	if len(errs) != 3 {
		t.Errorf("Expected 3 errors, got %d", len(errs))
	}
	if errs[0].Message != "navigation timeout" {
		t.Errorf("Unexpected message: %s", errs[0].Message)
	}
}

func TestErrorHistoryTrimmed(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < errorHistoryLimit+10; i++ {
		if err := store.RecordError("shop-1", "product", "boom"); err != nil {
			t.Fatalf("RecordError %d failed: %v", i, err)
		}
	}

	errs, err := store.RecentErrors("shop-1", "product", 100)
	if err != nil {
		t.Fatalf("RecentErrors failed: %v", err)
	}
	if len(errs) > errorHistoryLimit {
		t.Errorf("Error history not trimmed: %d entries", len(errs))
	}
}

func TestStats(t *testing.T) {
	store := newTestStore(t)

	if err := store.SaveDocument(sampleDocument("shop-1", "product")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.RecordError("shop-1", "product", "boom"); err != nil {
		t.Fatalf("RecordError failed: %v", err)
	}

	docs, errCount, err := store.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if docs != 1 || errCount != 1 {
		t.Errorf("Expected (1, 1), got (%d, %d)", docs, errCount)
	}
}
