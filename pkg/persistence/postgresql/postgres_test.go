package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/flowplane/flowplane/pkg/models"
	"github.com/flowplane/flowplane/pkg/persistence"
	"github.com/flowplane/flowplane/pkg/persistence/postgresql"
)

var postgresContainer *postgres.PostgresContainer

func dropDB(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"executions", "flows", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("flowplane_test"),
			postgres.WithUsername("flowplane"),
			postgres.WithPassword("flowplane"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDB(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDB(ctx, t, databaseURL)

		err = store.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return store, ctx, databaseURL
}

func sampleFlow() *models.Flow {
	now := time.Now().UTC().Truncate(time.Microsecond)

	return &models.Flow{
		ID:      uuid.New().String(),
		Name:    "nightly deploy",
		Version: 1,
		Nodes: []*models.Node{
			{ID: "build", Instruction: "build the artifact", OutputName: "artifact"},
			{ID: "deploy", Instruction: "deploy {{artifact}}", OnError: models.ErrorPolicyPause},
		},
		Edges:     []*models.Edge{{Source: "build", Target: "deploy"}},
		Variables: map[string]any{"env": "staging"},
		Metadata:  map[string]any{"schedule": "0 3 * * *"},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	var exists bool

	err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = 'flows')`).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists, "flows table should exist")

	err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = 'executions')`).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists, "executions table should exist")

	var version int

	err = db.QueryRowContext(ctx, "SELECT version FROM schema_migrations WHERE version = 1").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	assert.NoError(t, store.HealthCheck(ctx))
}

func TestNewPersistence_SaveAndRetrieveFlow(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	original := sampleFlow()
	require.NoError(t, store.Flows().Save(ctx, original))

	loaded, err := store.Flows().GetByID(ctx, original.ID)
	require.NoError(t, err)

	assert.Equal(t, original.Name, loaded.Name)
	assert.Equal(t, "staging", loaded.Variables["env"])
	assert.Equal(t, "0 3 * * *", loaded.Metadata["schedule"])
	require.Len(t, loaded.Nodes, 2)
	assert.Equal(t, "artifact", loaded.Nodes[0].OutputName)
	assert.Equal(t, models.ErrorPolicyPause, loaded.Nodes[1].OnError)
	require.Len(t, loaded.Edges, 1)
}

func TestNewPersistence_FlowUpsert(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	original := sampleFlow()
	require.NoError(t, store.Flows().Save(ctx, original))

	original.Name = "nightly deploy v2"
	original.Version = 2
	require.NoError(t, store.Flows().Save(ctx, original))

	loaded, err := store.Flows().GetByID(ctx, original.ID)
	require.NoError(t, err)
	assert.Equal(t, "nightly deploy v2", loaded.Name)
	assert.Equal(t, 2, loaded.Version)

	flows, err := store.Flows().List(ctx)
	require.NoError(t, err)
	assert.Len(t, flows, 1)
}

func TestNewPersistence_FlowNotFound(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	_, err := store.Flows().GetByID(ctx, "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsFlowNotFound(err))
}

func TestNewPersistence_DeleteFlow(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	original := sampleFlow()
	require.NoError(t, store.Flows().Save(ctx, original))
	require.NoError(t, store.Flows().Delete(ctx, original.ID))

	_, err := store.Flows().GetByID(ctx, original.ID)
	assert.True(t, persistence.IsFlowNotFound(err))

	err = store.Flows().Delete(ctx, original.ID)
	assert.True(t, persistence.IsFlowNotFound(err))
}

func TestNewPersistence_SaveAndRetrieveExecution(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	flow := sampleFlow()
	require.NoError(t, store.Flows().Save(ctx, flow))

	state := models.NewExecutionState(uuid.New().String(), flow, map[string]any{"extra": "value"})
	state.Status = models.ExecutionStatusPaused
	state.CurrentNodeID = "deploy"
	state.NodeStates["build"].Status = models.NodeRunStatusCompleted
	state.AppendLog(models.LogLevelInfo, "build", "node completed")

	require.NoError(t, store.Executions().Save(ctx, state))

	loaded, err := store.Executions().GetByID(ctx, state.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusPaused, loaded.Status)
	assert.Equal(t, flow.ID, loaded.FlowID)
	assert.Equal(t, "deploy", loaded.CurrentNodeID)
	assert.Equal(t, "value", loaded.Variables["extra"])
	assert.Equal(t, models.NodeRunStatusCompleted, loaded.NodeStates["build"].Status)
	require.Len(t, loaded.Logs, 1)
	assert.Equal(t, "node completed", loaded.Logs[0].Message)
}

func TestNewPersistence_ExecutionNotFound(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	_, err := store.Executions().GetByID(ctx, "missing")
	assert.True(t, persistence.IsExecutionNotFound(err))
}

func TestNewPersistence_ListExecutionsByFlow(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	flowA := sampleFlow()
	flowB := sampleFlow()
	require.NoError(t, store.Flows().Save(ctx, flowA))
	require.NoError(t, store.Flows().Save(ctx, flowB))

	require.NoError(t, store.Executions().Save(ctx, models.NewExecutionState(uuid.New().String(), flowA, nil)))
	require.NoError(t, store.Executions().Save(ctx, models.NewExecutionState(uuid.New().String(), flowA, nil)))
	require.NoError(t, store.Executions().Save(ctx, models.NewExecutionState(uuid.New().String(), flowB, nil)))

	forA, err := store.Executions().ListByFlow(ctx, flowA.ID)
	require.NoError(t, err)
	assert.Len(t, forA, 2)

	all, err := store.Executions().List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
