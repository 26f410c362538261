package bookshelf

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akriventsev/bookshelf/framework/core"
)

type fakeComponent struct {
	name     string
	startErr error
	calls    *[]string
	running  bool
}

func (c *fakeComponent) Name() string            { return c.name }
func (c *fakeComponent) Type() core.ComponentType { return core.ComponentTypeAdapter }

func (c *fakeComponent) Start(ctx context.Context) error {
	*c.calls = append(*c.calls, "start "+c.name)
	if c.startErr != nil {
		return c.startErr
	}
	c.running = true
	return nil
}

func (c *fakeComponent) Stop(ctx context.Context) error {
	*c.calls = append(*c.calls, "stop "+c.name)
	c.running = false
	return nil
}

func (c *fakeComponent) IsRunning() bool { return c.running }

type passive struct{}

func (passive) Name() string            { return "passive" }
func (passive) Type() core.ComponentType { return core.ComponentTypeStore }

func TestApp_StartStopOrder(t *testing.T) {
	var calls []string
	app := New()
	require.NoError(t, app.RegisterComponent(&fakeComponent{name: "a", calls: &calls}))
	require.NoError(t, app.RegisterComponent(passive{}))
	require.NoError(t, app.RegisterComponent(&fakeComponent{name: "b", calls: &calls}))

	require.NoError(t, app.Start(context.Background()))
	require.NoError(t, app.Stop(context.Background()))
	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, calls)
}

func TestApp_StartFailureStopsStarted(t *testing.T) {
	var calls []string
	app := New()
	require.NoError(t, app.RegisterComponent(&fakeComponent{name: "a", calls: &calls}))
	require.NoError(t, app.RegisterComponent(&fakeComponent{name: "b", calls: &calls, startErr: errors.New("port in use")}))

	err := app.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port in use")
	assert.Equal(t, []string{"start a", "start b", "stop a"}, calls)
}

func TestApp_Registry(t *testing.T) {
	app := New()
	require.NoError(t, app.RegisterComponent(passive{}))
	assert.Error(t, app.RegisterComponent(passive{}))

	c, err := app.GetComponent("passive")
	require.NoError(t, err)
	assert.Equal(t, "passive", c.Name())

	_, err = app.GetComponent("missing")
	assert.True(t, core.HasCode(err, core.ErrNotFound))
}

func TestGetMetadata(t *testing.T) {
	assert.Equal(t, Version, GetMetadata().Version)
	assert.Equal(t, "bookshelf", GetMetadata().Name)
}
