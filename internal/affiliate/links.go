// Package affiliate builds personalized partner links. Every link carries
// the Telegram user id so the partner's postbacks can be correlated back
// to the funnel.
package affiliate

import (
	"fmt"
	"net/url"
	"strconv"
)

// Links builds registration and deposit URLs from the configured bases.
type Links struct {
	register *url.URL
	deposit  *url.URL
}

// New parses and validates the base URLs.
func New(registerURL, depositURL string) (*Links, error) {
	reg, err := parseBase("register", registerURL)
	if err != nil {
		return nil, err
	}
	dep, err := parseBase("deposit", depositURL)
	if err != nil {
		return nil, err
	}
	return &Links{register: reg, deposit: dep}, nil
}

func parseBase(name, raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("affiliate: %s url: %w", name, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("affiliate: %s url %q must be absolute", name, raw)
	}
	return u, nil
}

// Register returns the registration link for the user.
func (l *Links) Register(userID int64, payload, lang string) string {
	return build(l.register, userID, payload, lang)
}

// Deposit returns the deposit link for the user.
func (l *Links) Deposit(userID int64, payload, lang string) string {
	return build(l.deposit, userID, payload, lang)
}

func build(base *url.URL, userID int64, payload, lang string) string {
	u := *base
	q := u.Query()
	q.Set("uid", strconv.FormatInt(userID, 10))
	if payload != "" {
		q.Set("src", payload)
	}
	q.Set("lang", lang)
	u.RawQuery = q.Encode()
	return u.String()
}
