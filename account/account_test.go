package account_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/ghost-auth/vaultcore/account"
)

func validAccount() account.Account {
	return account.Account{
		ID:           "1",
		Issuer:       "GitHub",
		Label:        "u@x",
		Secret:       "JBSWY3DPEHPK3PXP",
		Algorithm:    account.SHA1,
		Digits:       6,
		Period:       30,
		LastModified: 1000,
	}
}

func TestAccount_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*account.Account)
		wantErr error
	}{
		{name: "valid", mutate: func(*account.Account) {}, wantErr: nil},
		{name: "missing id", mutate: func(a *account.Account) { a.ID = "" }, wantErr: account.ErrIDRequired},
		{name: "issuer too long", mutate: func(a *account.Account) { a.Issuer = strings.Repeat("x", 256) }, wantErr: account.ErrIssuerTooLong},
		{name: "label too long", mutate: func(a *account.Account) { a.Label = strings.Repeat("x", 256) }, wantErr: account.ErrLabelTooLong},
		{name: "bad secret", mutate: func(a *account.Account) { a.Secret = "not-base32!" }, wantErr: account.ErrInvalidSecret},
		{name: "bad algorithm", mutate: func(a *account.Account) { a.Algorithm = "MD5" }, wantErr: account.ErrInvalidAlgorithm},
		{name: "bad digits", mutate: func(a *account.Account) { a.Digits = 7 }, wantErr: account.ErrInvalidDigits},
		{name: "period too short", mutate: func(a *account.Account) { a.Period = 14 }, wantErr: account.ErrInvalidPeriod},
		{name: "period too long", mutate: func(a *account.Account) { a.Period = 121 }, wantErr: account.ErrInvalidPeriod},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := validAccount()
			tt.mutate(&a)

			err := a.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAccount_Redacted(t *testing.T) {
	a := validAccount()

	r := a.Redacted()
	if r.Secret != "" {
		t.Fatalf("Redacted() kept secret: %q", r.Secret)
	}

	if a.Secret == "" {
		t.Fatalf("Redacted() mutated the receiver")
	}
}
