package catalogworker

import (
	"testing"
	"time"

	"github.com/vaultshelf/orchestrator/internal/librarystore"
)

func TestAssessOwnershipMissingPurchaseDate(t *testing.T) {
	r := AssessOwnership(librarystore.Entry{CatalogID: "c1", SyncStatus: "synced"})
	if r.Owned {
		t.Fatal("expected not owned without a purchase date")
	}
}

func TestAssessOwnershipUnverifiedSyncStatus(t *testing.T) {
	when := time.Now()
	r := AssessOwnership(librarystore.Entry{CatalogID: "c1", PurchaseDate: &when, SyncStatus: "pending"})
	if r.Owned {
		t.Fatal("expected not owned with pending sync status")
	}
}

func TestAssessOwnershipBorrowedTag(t *testing.T) {
	when := time.Now()
	r := AssessOwnership(librarystore.Entry{
		CatalogID:    "c1",
		PurchaseDate: &when,
		SyncStatus:   "synced",
		SourceTags:   []string{"borrowed"},
	})
	if r.Owned {
		t.Fatal("expected not owned for a borrowed entry")
	}
}

func TestAssessOwnershipConfirmedPurchase(t *testing.T) {
	when := time.Now()
	r := AssessOwnership(librarystore.Entry{
		CatalogID:    "c1",
		PurchaseDate: &when,
		SyncStatus:   "synced",
		SourceTags:   []string{"purchased"},
	})
	if !r.Owned {
		t.Fatalf("expected owned, got reason %q", r.Reason)
	}
}

func TestRequiresVoucher(t *testing.T) {
	if !RequiresVoucher(FormatEncryptedB) {
		t.Error("expected encrypted-B to require a voucher")
	}
	if RequiresVoucher(FormatEncryptedA) {
		t.Error("expected encrypted-A not to require a voucher")
	}
}
