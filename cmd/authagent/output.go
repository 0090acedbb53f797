package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"storefront/internal/api"
	"storefront/internal/identity"
)

type statusReport struct {
	Authenticated bool            `json:"authenticated"`
	User          *identity.User  `json:"user,omitempty"`
	Account       *api.UserStatus `json:"account,omitempty"`
}

// printer writes command results for humans on a terminal and as JSON otherwise.
type printer struct {
	w    io.Writer
	json bool
}

func newPrinter(f *os.File, forceJSON bool) *printer {
	return &printer{w: f, json: forceJSON || !term.IsTerminal(int(f.Fd()))}
}

func (p *printer) status(r statusReport) error {
	if p.json {
		return p.encode(r)
	}
	if !r.Authenticated || r.User == nil {
		_, err := fmt.Fprintln(p.w, "not signed in")
		return err
	}
	u := r.User
	if _, err := fmt.Fprintf(p.w, "signed in as %s <%s>\n  id:       %s\n  role:     %s\n  verified: %t\n", u.Username, u.Email, u.ID, u.Role, u.IsVerified); err != nil {
		return err
	}
	if r.Account != nil {
		_, err := fmt.Fprintf(p.w, "  active:   %t\n", r.Account.IsActive)
		return err
	}
	return nil
}

func (p *printer) message(msg string) error {
	if p.json {
		return p.encode(map[string]string{"message": msg})
	}
	_, err := fmt.Fprintln(p.w, msg)
	return err
}

func (p *printer) encode(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
