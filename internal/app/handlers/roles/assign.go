package roles

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/DanielNoblero/consultorios-app/internal/app/apperr"
	"github.com/DanielNoblero/consultorios-app/internal/app/handlers/support"
	"github.com/DanielNoblero/consultorios-app/internal/app/uow"
	"github.com/DanielNoblero/consultorios-app/internal/domain/calendar"
	domainuser "github.com/DanielNoblero/consultorios-app/internal/domain/user"
)

const assignRoleKey = "roles.assign"

// AssignRoleCommand grants Role (admin when empty) to the profile registered
// under TargetEmail.
type AssignRoleCommand struct {
	CallerID    string
	TargetEmail string
	Role        string
}

func (c AssignRoleCommand) Key() string { return assignRoleKey }

func (c AssignRoleCommand) AdminActor() string { return c.CallerID }

type AssignRoleResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type AssignRoleHandler struct {
	UoWFactory uow.UoWFactory
	Claims     domainuser.ClaimsSyncer
	Clock      calendar.Clock
	Logger     *slog.Logger
}

// Handle stores the role and mirrors it into the identity claims before the
// unit commits; a failed mirror aborts the stored change as well.
func (h *AssignRoleHandler) Handle(ctx context.Context, cmd AssignRoleCommand) (*AssignRoleResult, error) {
	email := domainuser.NormalizeEmail(cmd.TargetEmail)
	if email == "" {
		return nil, apperr.Wrap(apperr.KindInvalidArgument, "target email required", domainuser.ErrEmailRequired)
	}
	raw := strings.TrimSpace(cmd.Role)
	if raw == "" {
		raw = string(domainuser.RoleAdmin)
	}
	role, err := domainuser.ParseRole(raw)
	if err != nil {
		return nil, err
	}

	err = support.WithinUnit(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		profile, err := unit.Profiles().ByEmail(ctx, email)
		if err != nil {
			return err
		}
		now := calendar.SystemClock{}.Now()
		if h.Clock != nil {
			now = h.Clock.Now()
		}
		profile.AssignRole(role, now)
		if err := unit.Profiles().Save(ctx, profile); err != nil {
			return err
		}
		if h.Claims == nil {
			return nil
		}
		if err := h.Claims.SyncClaims(ctx, profile.ID, profile.Claims()); err != nil {
			return fmt.Errorf("roles: sync claims: %w", err)
		}
		return nil
	})
	if err != nil {
		h.logger().ErrorContext(ctx, "role assignment failed", "caller_id", cmd.CallerID, "target", email, "role", role, "error", err)
		return nil, err
	}
	return &AssignRoleResult{OK: true, Message: fmt.Sprintf("role '%s' assigned to %s", role, email)}, nil
}

func (h *AssignRoleHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
