package usecase

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vpn-shop-bot/internal/domain"
	"vpn-shop-bot/internal/domain/model"
	"vpn-shop-bot/internal/domain/ports/repository"
	"vpn-shop-bot/internal/infra/logging"
	"vpn-shop-bot/internal/infra/metrics"
)

var _ UserUseCase = (*userUC)(nil)

// Profile is what the profile screen shows.
type Profile struct {
	User   *model.User
	Keys   []*model.Key
	Latest *model.Key
}

// UserUseCase exposes user-related operations used by bot/admin flows.
type UserUseCase interface {
	// Register creates the user on first contact. startArg is the /start payload; a
	// "ref_<id>" referrer is honoured only for a new user and never for the user itself.
	Register(ctx context.Context, tgID int64, username, startArg string) (*model.User, bool, error)
	// Get returns (nil, nil) for an unknown user.
	Get(ctx context.Context, tgID int64) (*model.User, error)
	AgreeToTerms(ctx context.Context, tgID int64) error
	Profile(ctx context.Context, tgID int64) (*Profile, error)
	SetBanned(ctx context.Context, tgID int64, banned bool) error
	Count(ctx context.Context) (int, error)
}

type userUC struct {
	users repository.UserRepository
	keys  repository.KeyRepository
	log   *zerolog.Logger
	now   func() time.Time
}

func NewUserUseCase(users repository.UserRepository, keys repository.KeyRepository, logger *zerolog.Logger) *userUC {
	return &userUC{users: users, keys: keys, log: logger, now: time.Now}
}

// ParseReferrer extracts the referrer id from a "ref_<id>" start argument.
func ParseReferrer(startArg string) *int64 {
	arg := strings.TrimSpace(startArg)
	if !strings.HasPrefix(arg, "ref_") {
		return nil
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(arg, "ref_"), 10, 64)
	if err != nil || id <= 0 {
		return nil
	}
	return &id
}

func (u *userUC) Register(ctx context.Context, tgID int64, username, startArg string) (*model.User, bool, error) {
	defer logging.TraceDuration(u.log, "UserUC.Register")()

	nu, err := model.NewUser(tgID, username, ParseReferrer(startArg))
	if err != nil {
		return nil, false, err
	}
	if nu.ReferredBy != nil {
		// a referrer must itself be a registered user
		if ref, err := u.Get(ctx, *nu.ReferredBy); err != nil || ref == nil {
			nu.ReferredBy = nil
		}
	}
	created, err := u.users.CreateIfNotExists(ctx, repository.NoTX, nu)
	if err != nil {
		return nil, false, err
	}
	if created {
		metrics.IncUsersRegistered()
		logging.With(ctx, u.log).Info().Bool("referred", nu.ReferredBy != nil).Msg("user registered")
	}
	user, err := u.users.FindByTelegramID(ctx, repository.NoTX, tgID)
	if err != nil {
		return nil, false, err
	}
	return user, created, nil
}

func (u *userUC) Get(ctx context.Context, tgID int64) (*model.User, error) {
	user, err := u.users.FindByTelegramID(ctx, repository.NoTX, tgID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return user, err
}

func (u *userUC) AgreeToTerms(ctx context.Context, tgID int64) error {
	defer logging.TraceDuration(u.log, "UserUC.AgreeToTerms")()
	return u.users.SetAgreedToTerms(ctx, repository.NoTX, tgID)
}

func (u *userUC) Profile(ctx context.Context, tgID int64) (*Profile, error) {
	defer logging.TraceDuration(u.log, "UserUC.Profile")()
	user, err := u.users.FindByTelegramID(ctx, repository.NoTX, tgID)
	if err != nil {
		return nil, err
	}
	keys, err := u.keys.ListByUser(ctx, repository.NoTX, tgID)
	if err != nil {
		return nil, err
	}
	return &Profile{User: user, Keys: keys, Latest: model.LatestActive(keys, u.now())}, nil
}

func (u *userUC) SetBanned(ctx context.Context, tgID int64, banned bool) error {
	defer logging.TraceDuration(u.log, "UserUC.SetBanned")()
	return u.users.SetBanned(ctx, repository.NoTX, tgID, banned)
}

func (u *userUC) Count(ctx context.Context) (int, error) {
	return u.users.CountUsers(ctx, repository.NoTX)
}
