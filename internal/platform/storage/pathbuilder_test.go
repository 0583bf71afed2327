package storage

import "testing"

func TestBuildInvoicePathUsesInvoiceNumber(t *testing.T) {
	path, err := BuildObjectPath(PurposeInvoice, PathParams{
		OrderID:       "ord_0001",
		InvoiceNumber: "INV-2025-001",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "invoices/orders/ord_0001/INV-2025-001.html"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}

func TestBuildInvoicePathPrefersExplicitFileName(t *testing.T) {
	path, err := BuildObjectPath(PurposeInvoice, PathParams{
		OrderID:       "ord_0001",
		InvoiceNumber: "INV-2025-001",
		FileName:      "duplicate.html",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "invoices/orders/ord_0001/duplicate.html"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}

func TestBuildObjectPathRejectsInvalidSegment(t *testing.T) {
	_, err := BuildObjectPath(PurposeInvoice, PathParams{
		OrderID:       "../bad",
		InvoiceNumber: "INV-2025-001",
	})
	if err == nil {
		t.Fatalf("expected error for invalid segment")
	}
}

func TestBuildObjectPathUnknownPurpose(t *testing.T) {
	_, err := BuildObjectPath(AssetPurpose("thumbnail"), PathParams{OrderID: "ord_0001"})
	if err == nil {
		t.Fatalf("expected error for unknown purpose")
	}
}
