package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/photoflow/internal/credentials"
)

// AddAccount prompts for a device auth blob, validates it and stores the
// credential. The first stored account becomes active automatically.
func (a *App) AddAccount(ctx context.Context) error {
	blob, err := GetAuthBlob(os.Stdout)
	if err != nil {
		return err
	}

	res := credentials.ParseCredential(blob)
	if !res.IsValid {
		printlnFn("Invalid auth data, missing fields:", strings.Join(res.MissingFields, ", "))
		return fmt.Errorf("invalid credential: missing %s", strings.Join(res.MissingFields, ", "))
	}

	cred := &credentials.Credential{
		Email:    res.Email,
		AuthBlob: blob,
		AddedAt:  time.Now(),
	}
	if err := a.creds.Put(ctx, cred); err != nil {
		printlnFn("Failed to save account:", err)
		return err
	}

	printlnFn("Account added:", cred.Email)
	if a.active == nil {
		a.useCredential(cred)
		printlnFn("Active account:", cred.Email)
	}
	return nil
}

// ListAccounts prints stored accounts, marking the active one.
func (a *App) ListAccounts(ctx context.Context) error {
	list, err := a.creds.List(ctx)
	if err != nil {
		printlnFn("Failed to list accounts:", err)
		return err
	}
	if len(list) == 0 {
		printlnFn("No accounts. Use 'addaccount' to add one.")
		return nil
	}
	for _, c := range list {
		marker := " "
		if a.active != nil && a.active.Email == c.Email {
			marker = "*"
		}
		printlnFn(fmt.Sprintf("%s %s (added %s)", marker, c.Email, c.AddedAt.Format("2006-01-02")))
	}
	return nil
}

// UseAccount activates the stored account with the given email.
func (a *App) UseAccount(ctx context.Context, email string) error {
	cred, err := a.creds.Get(ctx, email)
	if err != nil {
		printlnFn("Account not found:", email)
		return err
	}
	a.useCredential(cred)
	printlnFn("Active account:", cred.Email)
	return nil
}

// RemoveAccount deletes a stored account. Removing the active account
// deactivates it.
func (a *App) RemoveAccount(ctx context.Context, email string) error {
	if err := a.creds.Delete(ctx, email); err != nil {
		printlnFn("Failed to remove account:", err)
		return err
	}
	if a.active != nil && a.active.Email == email {
		a.active = nil
		a.manager = nil
	}
	printlnFn("Account removed:", email)
	return nil
}
