package roles_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DanielNoblero/consultorios-app/internal/app/apperr"
	"github.com/DanielNoblero/consultorios-app/internal/app/commands"
	"github.com/DanielNoblero/consultorios-app/internal/app/handlers/roles"
	"github.com/DanielNoblero/consultorios-app/internal/app/middleware"
	"github.com/DanielNoblero/consultorios-app/internal/domain/calendar"
	domainuser "github.com/DanielNoblero/consultorios-app/internal/domain/user"
	"github.com/DanielNoblero/consultorios-app/internal/infra/storage/memory"
)

func setup() (*memory.Store, *memory.ClaimsSyncer, commands.Bus) {
	store := memory.NewStore()
	store.PutProfile(domainuser.Profile{ID: "root", Email: "root@example.com", Role: domainuser.RoleAdmin, Admin: true})
	store.PutProfile(domainuser.Profile{ID: "ana", Email: "Ana@Example.com", Role: domainuser.RoleProfessional})
	factory := store.Factory()
	syncer := &memory.ClaimsSyncer{Store: store}

	reg := commands.NewRegistry()
	commands.RegisterHandler(reg, roles.AssignRoleCommand{}.Key(), &roles.AssignRoleHandler{
		UoWFactory: factory,
		Claims:     syncer,
		Clock:      calendar.FixedClock(time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)),
	})
	bus := middleware.ChainCommands(reg,
		middleware.Authorization(middleware.StoredRoleAuthorizer{UoWFactory: factory}),
		middleware.Transaction(factory, nil),
	)
	return store, syncer, bus
}

func assign(bus commands.Bus, cmd roles.AssignRoleCommand) (*roles.AssignRoleResult, error) {
	return commands.Dispatch[roles.AssignRoleCommand, *roles.AssignRoleResult](context.Background(), bus, cmd)
}

func TestAssignRoleDefaultsToAdmin(t *testing.T) {
	store, _, bus := setup()

	res, err := assign(bus, roles.AssignRoleCommand{CallerID: "root", TargetEmail: " ANA@example.com "})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Contains(t, res.Message, "ana@example.com")

	p, _ := store.Profile("ana")
	assert.Equal(t, domainuser.RoleAdmin, p.Role)
	assert.True(t, p.Admin)
	claims, ok := store.Claims("ana")
	require.True(t, ok)
	assert.Equal(t, domainuser.Claims{Role: domainuser.RoleAdmin, Admin: true}, claims)
}

func TestAssignRoleKeepsRoleAndFlagTogether(t *testing.T) {
	store, _, bus := setup()
	_, err := assign(bus, roles.AssignRoleCommand{CallerID: "root", TargetEmail: "root@example.com", Role: "professional"})
	require.NoError(t, err)

	p, _ := store.Profile("root")
	assert.Equal(t, domainuser.RoleProfessional, p.Role)
	assert.False(t, p.Admin)
	claims, _ := store.Claims("root")
	assert.False(t, claims.Admin)

	// root is no longer an administrator, so it cannot assign roles any more.
	_, err = assign(bus, roles.AssignRoleCommand{CallerID: "root", TargetEmail: "ana@example.com"})
	assert.ErrorIs(t, err, apperr.ErrAdminRequired)
}

func TestAssignRoleRejections(t *testing.T) {
	_, _, bus := setup()
	cases := []struct {
		name string
		cmd  roles.AssignRoleCommand
		kind apperr.Kind
	}{
		{"caller not admin", roles.AssignRoleCommand{CallerID: "ana", TargetEmail: "root@example.com"}, apperr.KindPermissionDenied},
		{"anonymous caller", roles.AssignRoleCommand{TargetEmail: "ana@example.com"}, apperr.KindUnauthenticated},
		{"missing email", roles.AssignRoleCommand{CallerID: "root"}, apperr.KindInvalidArgument},
		{"unknown role", roles.AssignRoleCommand{CallerID: "root", TargetEmail: "ana@example.com", Role: "owner"}, apperr.KindInvalidArgument},
		{"unknown email", roles.AssignRoleCommand{CallerID: "root", TargetEmail: "nobody@example.com"}, apperr.KindNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := assign(bus, tc.cmd)
			require.Error(t, err)
			assert.Equal(t, tc.kind, apperr.KindOf(err))
		})
	}
}

func TestAssignRoleRollsBackWhenClaimsSyncFails(t *testing.T) {
	store, syncer, bus := setup()
	syncer.Fail = errors.New("identity provider down")

	_, err := assign(bus, roles.AssignRoleCommand{CallerID: "root", TargetEmail: "ana@example.com"})
	require.Error(t, err)

	p, _ := store.Profile("ana")
	assert.Equal(t, domainuser.RoleProfessional, p.Role)
	assert.False(t, p.Admin)
}
