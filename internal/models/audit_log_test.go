package models

import (
	"testing"
	"time"
)

func TestAuditMetadata_ScanBytes(t *testing.T) {
	var m AuditMetadata
	if err := m.Scan([]byte(`{"method":"totp","remaining":3}`)); err != nil {
		t.Fatalf("Scan() = %v, want nil", err)
	}

	if m["method"] != "totp" {
		t.Errorf("expected method totp, got %v", m["method"])
	}
	if m["remaining"] != float64(3) {
		t.Errorf("expected remaining 3, got %v", m["remaining"])
	}
}

func TestAuditMetadata_ScanString(t *testing.T) {
	var m AuditMetadata
	if err := m.Scan(`{"label":"laptop"}`); err != nil {
		t.Fatalf("Scan() = %v, want nil", err)
	}
	if m["label"] != "laptop" {
		t.Errorf("expected label laptop, got %v", m["label"])
	}
}

func TestAuditMetadata_ScanNil(t *testing.T) {
	var m AuditMetadata
	if err := m.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) = %v, want nil", err)
	}
	if m == nil || len(m) != 0 {
		t.Errorf("expected empty metadata, got %v", m)
	}
}

func TestAuditMetadata_ScanRejectsOtherTypes(t *testing.T) {
	var m AuditMetadata
	if err := m.Scan(42); err != ErrBadRequest {
		t.Errorf("Scan(42) = %v, want ErrBadRequest", err)
	}
}

func TestAuditMetadata_Value(t *testing.T) {
	var empty AuditMetadata
	v, err := empty.Value()
	if err != nil || v != nil {
		t.Errorf("nil metadata Value() = %v, %v; want nil, nil", v, err)
	}

	v, err = AuditMetadata{"method": "passkey"}.Value()
	if err != nil {
		t.Fatalf("Value() = %v, want nil", err)
	}
	if string(v.([]byte)) != `{"method":"passkey"}` {
		t.Errorf("unexpected value %s", v)
	}
}

func TestAccount_IsLocked(t *testing.T) {
	acct := &Account{}
	now := mustTime(t, "2026-03-14T09:00:00Z")
	if acct.IsLocked(now) {
		t.Error("account without lock reported locked")
	}

	until := now.Add(1)
	acct.LockedUntil = &until
	if !acct.IsLocked(now) {
		t.Error("account inside lock window reported unlocked")
	}
	if acct.IsLocked(until) {
		t.Error("lock should lift exactly at LockedUntil")
	}
}

func TestAccount_CloneIsDeep(t *testing.T) {
	now := mustTime(t, "2026-03-14T09:00:00Z")
	orig := &Account{LockedUntil: &now, BackupCodes: []string{"a"}, MFASecretNonce: []byte{1}}

	c := orig.Clone()
	c.BackupCodes[0] = "b"
	c.MFASecretNonce[0] = 2
	*c.LockedUntil = now.Add(1)

	if orig.BackupCodes[0] != "a" || orig.MFASecretNonce[0] != 1 || !orig.LockedUntil.Equal(now) {
		t.Error("Clone shares state with the original")
	}
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatal(err)
	}
	return ts
}
