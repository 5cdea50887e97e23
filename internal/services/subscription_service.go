// Package services – SubscriptionService
//
// This file implements the subscription lifecycle: registering users,
// materializing coins on first reference (fetching their initial quote),
// subscribing with an alert price and unsubscribing. Quotes are fetched
// before any transaction opens; every write then runs in a single
// transaction so a coin and its relation commit together or not at all.
package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-token-alert-bot/internal/domain"
	"github.com/tbourn/go-token-alert-bot/internal/quote"
	"github.com/tbourn/go-token-alert-bot/internal/repo"
)

// QuoteFetcher returns the current quote for a (chain, address) pair.
// *quote.Client satisfies it.
type QuoteFetcher interface {
	FetchQuote(ctx context.Context, chain, address string) (quote.Quote, error)
}

// SubscriptionService owns users, coins and their relations.
type SubscriptionService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Quotes materializes coins that are not tracked yet.
	Quotes QuoteFetcher
	// Now is the clock used for price timestamps; nil means time.Now.
	Now func() time.Time
}

// NewSubscriptionService wires a service around db and q.
func NewSubscriptionService(db *gorm.DB, q QuoteFetcher) *SubscriptionService {
	return &SubscriptionService{DB: db, Quotes: q}
}

func (s *SubscriptionService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// CreateUser registers tgID. It returns ErrDuplicateUser when the id is
// already registered.
func (s *SubscriptionService) CreateUser(ctx context.Context, tgID int64) (*domain.User, error) {
	u, err := repo.CreateUser(ctx, s.DB, tgID)
	if err != nil {
		if isDuplicate(err) {
			return nil, ErrDuplicateUser
		}
		return nil, err
	}
	return u, nil
}

// GetUser looks up tgID, or returns ErrUserNotFound.
func (s *SubscriptionService) GetUser(ctx context.Context, tgID int64) (*domain.User, error) {
	u, err := repo.GetUserByTgID(ctx, s.DB, tgID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// EnsureUser returns the user for tgID, registering it first when needed.
// created reports whether this call inserted the row.
func (s *SubscriptionService) EnsureUser(ctx context.Context, tgID int64) (u *domain.User, created bool, err error) {
	u, err = s.GetUser(ctx, tgID)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}
	u, err = s.CreateUser(ctx, tgID)
	if errors.Is(err, ErrDuplicateUser) {
		// lost a race with a concurrent /start
		u, err = s.GetUser(ctx, tgID)
		return u, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}

// GetOrCreateCoin returns the coin tracked at address. When none exists it
// fetches a quote and inserts the coin with the quoted symbol and price. A
// failed fetch creates nothing and returns the quote error.
func (s *SubscriptionService) GetOrCreateCoin(ctx context.Context, chain, address string) (*domain.Coin, error) {
	c, q, err := s.lookupOrQuote(ctx, chain, address)
	if err != nil || c != nil {
		return c, err
	}
	var coin *domain.Coin
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := coinIn(ctx, tx, chain, address, q)
		coin = c
		return err
	})
	if err != nil {
		return nil, err
	}
	return coin, nil
}

// lookupOrQuote returns the coin tracked at address or, when there is none,
// a fresh quote for it. The fetch runs outside any transaction so a slow
// price source never holds a database snapshot open.
func (s *SubscriptionService) lookupOrQuote(ctx context.Context, chain, address string) (*domain.Coin, *quote.Quote, error) {
	c, err := repo.GetCoinByAddress(ctx, s.DB, address)
	if err == nil {
		return c, nil, nil
	}
	if !isNotFound(err) {
		return nil, nil, err
	}
	q, err := s.Quotes.FetchQuote(ctx, chain, address)
	if err != nil {
		return nil, nil, fmt.Errorf("materialize %s/%s: %w", chain, address, err)
	}
	return nil, &q, nil
}

// coinIn re-reads the coin at address inside tx and inserts it from q when
// it is still missing. q is nil when the coin was already tracked.
func coinIn(ctx context.Context, tx *gorm.DB, chain, address string, q *quote.Quote) (*domain.Coin, error) {
	c, err := repo.GetCoinByAddress(ctx, tx, address)
	if err == nil {
		return c, nil
	}
	if !isNotFound(err) {
		return nil, err
	}
	if q == nil {
		return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, address)
	}

	// Nested transaction = savepoint, so a duplicate insert can be rolled
	// back without poisoning the outer transaction on Postgres.
	err = tx.Transaction(func(sp *gorm.DB) error {
		c, err = repo.CreateCoin(ctx, sp, chain, address, q.Symbol, q.Price())
		return err
	})
	if err == nil {
		return c, nil
	}
	if !isDuplicate(err) {
		return nil, err
	}
	// A concurrent subscribe inserted the coin first.
	return repo.GetCoinByAddress(ctx, tx, address)
}

// ListCoins returns every tracked coin in insertion order.
func (s *SubscriptionService) ListCoins(ctx context.Context) ([]domain.Coin, error) {
	return repo.ListCoins(ctx, s.DB)
}

// ListCoinsPage returns a 1-based page of tracked coins and the total count.
func (s *SubscriptionService) ListCoinsPage(ctx context.Context, page, pageSize int) ([]domain.Coin, int64, error) {
	total, err := repo.CountCoins(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	items, err := repo.ListCoinsPage(ctx, s.DB, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// CoinsVersion returns the tracked-coin count and the latest price write,
// which together change whenever the listing does.
func (s *SubscriptionService) CoinsVersion(ctx context.Context) (int64, *time.Time, error) {
	return repo.CoinsStats(ctx, s.DB)
}

// UpdateCoinPrice stores a fresh price and timestamp for address. It returns
// ErrTokenNotFound when the address is not tracked.
func (s *SubscriptionService) UpdateCoinPrice(ctx context.Context, address string, price float64) error {
	err := repo.UpdateCoinPrice(ctx, s.DB, address, price, s.now())
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", ErrTokenNotFound, address)
		}
		return err
	}
	return nil
}

// Subscribers lists the users watching coinID with their alert prices.
func (s *SubscriptionService) Subscribers(ctx context.Context, coinID uint) ([]domain.Subscriber, error) {
	return repo.ListCoinSubscribers(ctx, s.DB, coinID)
}

// Subscribe attaches tgID to the coin at address with the given alert
// price, materializing the coin on first reference from a quote for
// (chain, address). Subscribing again overwrites the previous alert price.
//
// Errors: ErrInvalidThreshold, ErrUserNotFound, or the quote error when the
// coin had to be materialized and the fetch failed. On any error nothing is
// written. The quote is fetched before the transaction opens.
func (s *SubscriptionService) Subscribe(ctx context.Context, tgID int64, chain, address string, threshold float64) (domain.Subscription, error) {
	if !(threshold > 0) || math.IsInf(threshold, 0) {
		return domain.Subscription{}, ErrInvalidThreshold
	}

	if _, err := s.GetUser(ctx, tgID); err != nil {
		return domain.Subscription{}, err
	}
	_, q, err := s.lookupOrQuote(ctx, chain, address)
	if err != nil {
		return domain.Subscription{}, err
	}

	var sub domain.Subscription
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := repo.GetUserByTgID(ctx, tx, tgID)
		if err != nil {
			if isNotFound(err) {
				return ErrUserNotFound
			}
			return err
		}
		c, err := coinIn(ctx, tx, chain, address, q)
		if err != nil {
			return err
		}
		if err := repo.UpsertUserCoin(ctx, tx, u.ID, c.ID, threshold); err != nil {
			return err
		}
		alert := threshold
		sub = domain.NewSubscription(domain.UserCoin{UserID: u.ID, CoinID: c.ID, AlertPrice: &alert, Coin: *c})
		return nil
	})
	if err != nil {
		return domain.Subscription{}, err
	}
	return sub, nil
}

// Unsubscribe removes tgID's relation with the coin at address. Coins are
// keyed by address alone, so chain is only informational here, as it is for
// Subscribe on an already tracked coin. The coin stays tracked. It never fetches a quote or creates a coin: an untracked
// address simply yields ErrNotSubscribed.
func (s *SubscriptionService) Unsubscribe(ctx context.Context, tgID int64, chain, address string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := repo.GetUserByTgID(ctx, tx, tgID)
		if err != nil {
			if isNotFound(err) {
				return ErrUserNotFound
			}
			return err
		}
		c, err := repo.GetCoinByAddress(ctx, tx, address)
		if err != nil {
			if isNotFound(err) {
				return ErrNotSubscribed
			}
			return err
		}
		if err := repo.DeleteUserCoin(ctx, tx, u.ID, c.ID); err != nil {
			if isNotFound(err) {
				return ErrNotSubscribed
			}
			return err
		}
		return nil
	})
}

// ListSubscriptions returns tgID's subscriptions ordered by coin id.
func (s *SubscriptionService) ListSubscriptions(ctx context.Context, tgID int64) ([]domain.Subscription, error) {
	u, err := s.GetUser(ctx, tgID)
	if err != nil {
		return nil, err
	}
	rows, err := repo.ListUserCoins(ctx, s.DB, u.ID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Subscription, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.NewSubscription(r))
	}
	return out, nil
}
