package telegram

import (
	"errors"
	"net/url"
	"testing"
	"time"
)

const testToken = "12345:TEST_TOKEN"

func mintInitData(t *testing.T, botToken string, authDate time.Time, userJSON string) string {
	t.Helper()
	values := url.Values{}
	if userJSON != "" {
		values.Set("user", userJSON)
	}
	values.Set("query_id", "AAH")
	hash := Sign(values, botToken, authDate)
	values.Set("hash", hash)
	return values.Encode()
}

func TestValidateRoundtrip(t *testing.T) {
	authDate := time.Now().Add(-time.Minute)
	raw := mintInitData(t, testToken, authDate,
		`{"id":7,"first_name":"Ada","username":"ada","photo_url":"https://t.me/a.jpg"}`)

	got, err := Validate(raw, testToken, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if got.User.ID != 7 || got.User.Username != "ada" {
		t.Fatalf("parsed user %+v, want id 7 username ada", got.User)
	}
	if got.QueryID != "AAH" {
		t.Fatalf("query id = %q, want AAH", got.QueryID)
	}
	if got.AuthDate.Unix() != authDate.Unix() {
		t.Fatalf("auth date = %v, want %v", got.AuthDate, authDate)
	}
}

func TestValidateRejectsTamperedData(t *testing.T) {
	raw := mintInitData(t, testToken, time.Now(), `{"id":7,"first_name":"Ada"}`)

	values, _ := url.ParseQuery(raw)
	values.Set("user", `{"id":666,"first_name":"Mallory"}`)
	if _, err := Validate(values.Encode(), testToken, time.Hour); !errors.Is(err, ErrInvalidHash) {
		t.Fatalf("got %v, want ErrInvalidHash", err)
	}
}

func TestValidateRejectsWrongToken(t *testing.T) {
	raw := mintInitData(t, testToken, time.Now(), `{"id":7,"first_name":"Ada"}`)
	if _, err := Validate(raw, "999:OTHER", time.Hour); !errors.Is(err, ErrInvalidHash) {
		t.Fatalf("got %v, want ErrInvalidHash", err)
	}
}

func TestValidateRejectsMissingHash(t *testing.T) {
	if _, err := Validate("query_id=AAH", testToken, time.Hour); !errors.Is(err, ErrNoHash) {
		t.Fatalf("got %v, want ErrNoHash", err)
	}
}

func TestValidateExpiry(t *testing.T) {
	raw := mintInitData(t, testToken, time.Now().Add(-2*time.Hour), `{"id":7,"first_name":"Ada"}`)
	if _, err := Validate(raw, testToken, time.Hour); !errors.Is(err, ErrExpired) {
		t.Fatalf("got %v, want ErrExpired", err)
	}

	// Zero maxAge disables the freshness check.
	if _, err := Validate(raw, testToken, 0); err != nil {
		t.Fatalf("maxAge 0 should skip expiry: %v", err)
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name string
		user User
		want string
	}{
		{"username wins", User{FirstName: "Ada", LastName: "L", Username: "ada"}, "ada"},
		{"full name", User{FirstName: "Ada", LastName: "Lovelace"}, "Ada Lovelace"},
		{"first only", User{FirstName: "Ada"}, "Ada"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.DisplayName(); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}
