package affiliate

import (
	"net/url"
	"testing"
)

func TestRegisterLinkCarriesAttribution(t *testing.T) {
	links, err := New("https://partner.example.com/register?aff=77", "https://partner.example.com/deposit")
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	raw := links.Register(42, "camp42", "ru")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	q := u.Query()
	if q.Get("uid") != "42" || q.Get("src") != "camp42" || q.Get("lang") != "ru" {
		t.Fatalf("query = %v", q)
	}
	// Pre-existing query params on the base survive.
	if q.Get("aff") != "77" {
		t.Fatalf("base param lost: %v", q)
	}
}

func TestEmptyPayloadOmitsSrc(t *testing.T) {
	links, err := New("https://partner.example.com/register", "https://partner.example.com/deposit")
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	u, err := url.Parse(links.Deposit(42, "", "en"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, has := u.Query()["src"]; has {
		t.Fatal("src present for empty payload")
	}
	if u.Query().Get("uid") != "42" {
		t.Fatalf("query = %v", u.Query())
	}
}

func TestLinksAreIndependentPerUser(t *testing.T) {
	links, err := New("https://partner.example.com/register", "https://partner.example.com/deposit")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	a := links.Register(1, "x", "en")
	b := links.Register(2, "y", "ru")
	if a == b {
		t.Fatal("links identical for different users")
	}
	ua, _ := url.Parse(a)
	if ua.Query().Get("uid") != "1" || ua.Query().Get("src") != "x" {
		t.Fatalf("first link mutated: %s", a)
	}
}

func TestRelativeBaseRejected(t *testing.T) {
	if _, err := New("/register", "https://partner.example.com/deposit"); err == nil {
		t.Fatal("expected error for relative register url")
	}
	if _, err := New("https://partner.example.com/register", "deposit"); err == nil {
		t.Fatal("expected error for relative deposit url")
	}
}
