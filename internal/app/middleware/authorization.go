package middleware

import (
	"context"
	"errors"

	"github.com/DanielNoblero/consultorios-app/internal/app/apperr"
	"github.com/DanielNoblero/consultorios-app/internal/app/commands"
	"github.com/DanielNoblero/consultorios-app/internal/app/handlers/support"
	"github.com/DanielNoblero/consultorios-app/internal/app/queries"
	"github.com/DanielNoblero/consultorios-app/internal/app/uow"
	domainuser "github.com/DanielNoblero/consultorios-app/internal/domain/user"
)

type Authorizer interface {
	Authorize(ctx context.Context, message any) error
}

func Authorization(a Authorizer) CommandMiddleware {
	if a == nil {
		panic("middleware: authorizer required")
	}
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			if err := a.Authorize(ctx, cmd); err != nil {
				return nil, err
			}
			return next.Dispatch(ctx, cmd)
		})
	}
}

func QueryAuthorization(a Authorizer) QueryMiddleware {
	if a == nil {
		panic("middleware: authorizer required")
	}
	return func(next queries.Bus) queries.Bus {
		return queryFunc(func(ctx context.Context, q queries.Query) (any, error) {
			if err := a.Authorize(ctx, q); err != nil {
				return nil, err
			}
			return next.Ask(ctx, q)
		})
	}
}

// AdminMessage marks commands and queries reserved to administrators.
type AdminMessage interface {
	AdminActor() string
}

// StoredRoleAuthorizer checks AdminMessage actors against the stored profile.
// Token claims are never trusted for these messages.
type StoredRoleAuthorizer struct {
	UoWFactory uow.UoWFactory
}

func (a StoredRoleAuthorizer) Authorize(ctx context.Context, message any) error {
	msg, ok := message.(AdminMessage)
	if !ok {
		return nil
	}
	actor := msg.AdminActor()
	if actor == "" {
		return apperr.ErrUnauthenticated
	}
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, a.UoWFactory)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}
	profile, err := unit.Profiles().ByID(execCtx, domainuser.ID(actor))
	if err != nil {
		if errors.Is(err, domainuser.ErrNotFound) {
			return apperr.ErrAdminRequired
		}
		return err
	}
	if !profile.IsAdmin() {
		return apperr.ErrAdminRequired
	}
	return nil
}
