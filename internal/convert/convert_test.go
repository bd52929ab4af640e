package convert

import "testing"

func TestRequiresConversionByDeclaredFormat(t *testing.T) {
	if !RequiresConversion("/tmp/book.m4b", FormatEncryptedA) {
		t.Error("expected encrypted-A to require conversion regardless of extension")
	}
	if RequiresConversion("/tmp/book.m4b", FormatPlain) {
		t.Error("expected plain format not to require conversion")
	}
}

func TestRequiresConversionByExtensionFallback(t *testing.T) {
	if !RequiresConversion("/tmp/book.aax", "") {
		t.Error("expected .aax to imply encrypted-A when format is undeclared")
	}
	if !RequiresConversion("/tmp/book.aaxc", "") {
		t.Error("expected .aaxc to imply encrypted-B when format is undeclared")
	}
	if RequiresConversion("/tmp/book.mp3", "") {
		t.Error("expected .mp3 not to require conversion")
	}
}

func TestFormatFromExtension(t *testing.T) {
	if FormatFromExtension("/tmp/a.aax") != FormatEncryptedA {
		t.Error("expected .aax to map to encrypted-A")
	}
	if FormatFromExtension("/tmp/a.flac") != FormatPlain {
		t.Error("expected unknown extension to map to plain")
	}
}

func TestValidateRequiresVoucherForEncryptedB(t *testing.T) {
	err := Validate(Request{Format: FormatEncryptedB})
	if err != ErrVoucherRequired {
		t.Fatalf("expected ErrVoucherRequired, got %v", err)
	}
	err = Validate(Request{Format: FormatEncryptedB, VoucherPath: "/tmp/book.voucher"})
	if err != nil {
		t.Fatalf("expected no error with voucher present, got %v", err)
	}
}
