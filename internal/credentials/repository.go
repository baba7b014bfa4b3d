package credentials

import "context"

// Repository stores device credentials keyed by account email.
// Put overwrites an existing record for the same email (last write wins).
type Repository interface {
	Get(ctx context.Context, email string) (*Credential, error)
	Put(ctx context.Context, c *Credential) error
	Delete(ctx context.Context, email string) error
	List(ctx context.Context) ([]*Credential, error)
}
