package settings

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/barangay172/portal/internal/domain/activity"
	"github.com/barangay172/portal/internal/platform/auth"
	"github.com/barangay172/portal/internal/platform/db"
	"github.com/barangay172/portal/internal/platform/httperr"
)

type ActivityRecorder interface {
	Record(ctx context.Context, actionType, description string, target *activity.Target) error
}

type Service struct {
	repo     Repository
	tx       db.TxManager
	activity ActivityRecorder
	logger   zerolog.Logger
}

func NewService(repo Repository, tx db.TxManager, recorder ActivityRecorder, logger zerolog.Logger) *Service {
	return &Service{repo: repo, tx: tx, activity: recorder, logger: logger}
}

func (s *Service) Get(ctx context.Context, key string) (*Setting, error) {
	return s.repo.Get(ctx, key)
}

func (s *Service) List(ctx context.Context, group string) ([]*Setting, error) {
	return s.repo.List(ctx, group)
}

// Public returns the settings shown on the login page as key/value pairs.
func (s *Service) Public(ctx context.Context) (map[string]string, error) {
	all, err := s.repo.List(ctx, "")
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(publicKeys))
	for _, st := range all {
		if lo.Contains(publicKeys, st.Key) {
			out[st.Key] = st.Value
		}
	}
	return out, nil
}

// normalize checks value against the setting's declared type and returns
// its canonical text form.
func normalize(typ, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch typ {
	case TypeInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return "", httperr.Invalid("value must be an integer")
		}
		return strconv.Itoa(n), nil
	case TypeBool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return "", httperr.Invalid("value must be true or false")
		}
		return strconv.FormatBool(b), nil
	}
	return value, nil
}

func (s *Service) Set(ctx context.Context, key, value string) (*Setting, error) {
	var updated *Setting
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.Get(ctx, key)
		if err != nil {
			return err
		}
		v, err := normalize(current.Type, value)
		if err != nil {
			return err
		}
		if key == KeyItemsPerPage {
			if n, _ := strconv.Atoi(v); n < 1 || n > 100 {
				return httperr.Invalid("items_per_page must be between 1 and 100")
			}
		}
		if err := s.repo.SetValue(ctx, key, v, auth.UserIDFromContext(ctx)); err != nil {
			return err
		}
		if updated, err = s.repo.Get(ctx, key); err != nil {
			return err
		}
		return s.activity.Record(ctx, "setting_updated",
			fmt.Sprintf("Changed %s from %q to %q", key, current.Value, v),
			&activity.Target{Type: "system_setting", Name: key})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Bool reads a bool setting, returning def when it is missing or malformed.
func (s *Service) Bool(ctx context.Context, key string, def bool) bool {
	st, err := s.repo.Get(ctx, key)
	if err != nil {
		s.logger.Debug().Err(err).Str("key", key).Msg("setting unavailable, using default")
		return def
	}
	b, err := strconv.ParseBool(st.Value)
	if err != nil {
		return def
	}
	return b
}

// Int reads an int setting, returning def when it is missing or malformed.
func (s *Service) Int(ctx context.Context, key string, def int) int {
	st, err := s.repo.Get(ctx, key)
	if err != nil {
		return def
	}
	n, err := strconv.Atoi(st.Value)
	if err != nil {
		return def
	}
	return n
}

func (s *Service) String(ctx context.Context, key, def string) string {
	st, err := s.repo.Get(ctx, key)
	if err != nil || st.Value == "" {
		return def
	}
	return st.Value
}
