package mongoerr

import (
	"strings"
	"testing"
)

func TestCodeName(t *testing.T) {
	if got := CodeBadValue.Name(); got != "BadValue" {
		t.Fatalf("expected BadValue, got %s", got)
	}
	if got := Code(99999).Name(); got != "Error" {
		t.Fatalf("expected fallback Error for unknown code, got %s", got)
	}
}

func TestWithLabelDoesNotMutateOriginal(t *testing.T) {
	base := New(CodeBadValue, "bad field %s", "x")
	tagged := base.WithLabel(LabelUnsupportedFeature)
	if len(base.Labels) != 0 {
		t.Fatalf("expected original error to remain unlabeled, got %v", base.Labels)
	}
	if len(tagged.Labels) != 1 || tagged.Labels[0] != LabelUnsupportedFeature {
		t.Fatalf("expected tagged error to carry the label, got %v", tagged.Labels)
	}
}

func TestUnsupportedCarriesLabelAndCode(t *testing.T) {
	err := Unsupported("stage %s is not implemented", "$currentOp")
	if err.Code != CodeNotImplemented {
		t.Fatalf("expected CodeNotImplemented, got %d", err.Code)
	}
	if len(err.Labels) != 1 || err.Labels[0] != LabelUnsupportedFeature {
		t.Fatalf("expected UnsupportedFeature label, got %v", err.Labels)
	}
}

func TestNoSuchTransactionTransientLabel(t *testing.T) {
	transient := NoSuchTransaction(true, "no transaction in progress")
	if len(transient.Labels) != 1 || transient.Labels[0] != LabelTransientTransactionError {
		t.Fatalf("expected TransientTransactionError label, got %v", transient.Labels)
	}
	terminal := NoSuchTransaction(false, "no transaction in progress")
	if len(terminal.Labels) != 0 {
		t.Fatalf("expected no labels on terminal variant, got %v", terminal.Labels)
	}
}

func TestDuplicateKeyAndCommandNotFoundCodes(t *testing.T) {
	if err := DuplicateKey("E11000 duplicate key error"); err.Code != CodeDuplicateKey {
		t.Fatalf("expected CodeDuplicateKey, got %d", err.Code)
	}
	if err := CommandNotFound("bogus"); err.Code != CodeCommandNotFound {
		t.Fatalf("expected CodeCommandNotFound, got %d", err.Code)
	}
}

func TestAsExtractsTypedError(t *testing.T) {
	var err error = BadValue("bad")
	e, ok := As(err)
	if !ok || e.Code != CodeBadValue {
		t.Fatalf("expected As to extract *Error with CodeBadValue, got %v ok=%v", e, ok)
	}
	_, ok = As(nil)
	if ok {
		t.Fatalf("expected As(nil) to fail")
	}
}

func TestErrorStringIncludesCodeName(t *testing.T) {
	err := BadValue("field %q is wrong type", "age")
	s := err.Error()
	if !strings.Contains(s, "BadValue") {
		t.Fatalf("expected error string to include codeName BadValue, got %q", s)
	}
}
