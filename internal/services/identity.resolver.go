package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nimasrn/balance-bot/internal/model"
	"github.com/nimasrn/balance-bot/internal/repository"
	"github.com/nimasrn/balance-bot/pkg/logger"
	"github.com/shopspring/decimal"
)

// IdentityResolver turns an Identity into a stored user. A missing user is
// reported as ErrUserNotFound.
type IdentityResolver interface {
	Resolve(ctx context.Context, id model.Identity) (*model.User, error)
}

// FixedNameResolver serves the named-account mode: a fixed set of accounts
// such as person_a and person_b, optionally reachable through aliases.
type FixedNameResolver struct {
	users          UserRepository
	accounts       []string
	aliases        map[string]string
	defaultBalance decimal.Decimal
}

func NewFixedNameResolver(users UserRepository, accounts []string, aliases map[string]string, defaultBalance decimal.Decimal) *FixedNameResolver {
	normalized := make(map[string]string, len(aliases))
	for alias, account := range aliases {
		normalized[strings.ToLower(alias)] = account
	}
	return &FixedNameResolver{
		users:          users,
		accounts:       accounts,
		aliases:        normalized,
		defaultBalance: defaultBalance,
	}
}

// Canonical maps an alias or spelled account name to its account name.
func (r *FixedNameResolver) Canonical(name string) string {
	name = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "@"))
	if account, ok := r.aliases[name]; ok {
		return account
	}
	return name
}

func (r *FixedNameResolver) Accounts() []string {
	return r.accounts
}

func (r *FixedNameResolver) Resolve(ctx context.Context, id model.Identity) (*model.User, error) {
	name := id.Name
	if name == "" {
		name = id.Username
	}
	name = r.Canonical(name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty account name", ErrUserNotFound)
	}

	user, err := r.users.GetByIdentity(ctx, model.Identity{Name: name})
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, name)
		}
		return nil, err
	}
	return user, nil
}

// Seed creates the configured accounts with the default balance. Existing
// accounts keep their balance.
func (r *FixedNameResolver) Seed(ctx context.Context) error {
	for _, account := range r.accounts {
		user, err := r.users.GetOrCreate(ctx, model.Identity{Name: account}, r.defaultBalance)
		if err != nil {
			return fmt.Errorf("seed account %s: %w", account, err)
		}
		logger.Debug("account ready", "name", account, "user_id", user.ID, "balance", user.Balance.String())
	}
	return nil
}

// PlatformResolver serves the platform-identity mode. Identities carrying a
// platform id are registered on first sight with the default balance; bare
// usernames and names are only looked up.
type PlatformResolver struct {
	users          UserRepository
	defaultBalance decimal.Decimal
}

func NewPlatformResolver(users UserRepository, defaultBalance decimal.Decimal) *PlatformResolver {
	return &PlatformResolver{
		users:          users,
		defaultBalance: defaultBalance,
	}
}

func (r *PlatformResolver) Resolve(ctx context.Context, id model.Identity) (*model.User, error) {
	if id.PlatformID != 0 {
		return r.users.GetOrCreate(ctx, id, r.defaultBalance)
	}

	if id.IsZero() {
		return nil, fmt.Errorf("%w: empty identity", ErrUserNotFound)
	}

	user, err := r.users.GetByIdentity(ctx, model.Identity{Name: id.Name, Username: id.Username})
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, id)
		}
		return nil, err
	}
	return user, nil
}
