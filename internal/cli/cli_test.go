package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/kiranshivaraju/ayupilot/internal/config"
	"github.com/kiranshivaraju/ayupilot/internal/store"
	"github.com/kiranshivaraju/ayupilot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEnv shares one in-memory store across command invocations.
func testEnv(t *testing.T) (*env, *store.MemoryStore) {
	t.Helper()
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("REDIS_URL", "redis://127.0.0.1:1")
	t.Setenv("LOG_LEVEL", "error")

	st := store.NewMemoryStore()
	e := defaultEnv()
	e.openStore = func(context.Context, config.DatabaseConfig) (store.Store, func() error, error) {
		return st, func() error { return nil }, nil
	}
	return e, st
}

func execute(t *testing.T, e *env, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRoot(e)
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCreateDoctorThenKey(t *testing.T) {
	e, st := testEnv(t)

	out, err := execute(t, e, "create-doctor", "--email", "Meera@Example.com", "--name", "Dr. Meera")
	require.NoError(t, err)
	var doctor models.User
	require.NoError(t, json.Unmarshal([]byte(out), &doctor))
	assert.Equal(t, "meera@example.com", doctor.Email)

	out, err = execute(t, e, "create-key", "--email", "meera@example.com", "--scopes", "read,admin")
	require.NoError(t, err)
	assert.Contains(t, out, "key:    ayu_")
	assert.Contains(t, out, "scopes: admin,read")

	keys, err := st.ListAPIKeys(context.Background(), doctor.ID)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "cli", keys[0].Name)
}

func TestCreateKey_RequiresExactlyOneOwner(t *testing.T) {
	e, _ := testEnv(t)

	_, err := execute(t, e, "create-key")
	require.Error(t, err)

	_, err = execute(t, e, "create-key", "--email", "a@example.com", "--user-id", "8a4f0b9e-3c11-4b7e-9a57-2f9d61c0e001")
	require.Error(t, err)
}

func TestCreateKey_UnknownEmail(t *testing.T) {
	e, _ := testEnv(t)

	_, err := execute(t, e, "create-key", "--email", "nobody@example.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateDoctor_RequiresFlags(t *testing.T) {
	e, _ := testEnv(t)

	_, err := execute(t, e, "create-doctor", "--email", "a@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name")
}

func TestReconcile_PrintsCounts(t *testing.T) {
	e, _ := testEnv(t)

	out, err := execute(t, e, "reconcile")
	require.NoError(t, err)
	var res map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Contains(t, res, "no_show")
	assert.Contains(t, res, "completed")
}

func TestMigrate_RequiresPostgres(t *testing.T) {
	e, _ := testEnv(t)

	_, err := execute(t, e, "migrate", "up")
	assert.ErrorIs(t, err, errNoDatabase)

	_, err = execute(t, e, "migrate", "down", "--steps", "0")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "--steps"))
}
