package server

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SectorAlpha/AlphaGSM/datastore"
	"github.com/SectorAlpha/AlphaGSM/gamemodule"
)

func TestCreateAndLoad(t *testing.T) {
	h := newHarness(t)

	srv, err := Create("mc", "minecraft", h.env)
	require.NoError(t, err)
	assert.Equal(t, "minecraft.vanilla", srv.ModuleID())
	assert.IsType(t, &gamemodule.Vanilla{}, srv.Module())
	assert.Equal(t, DataPath(h.env.Settings, "mc"), srv.Data().Path())

	loaded, err := Load("mc", h.env)
	require.NoError(t, err)
	assert.Equal(t, "minecraft.vanilla", loaded.Data().GetString("module", ""))

	_, err = Create("mc", "custom", h.env)
	assert.ErrorIs(t, err, datastore.ErrExists)
	_, err = Create("other", "factorio", h.env)
	assert.ErrorIs(t, err, gamemodule.ErrUnknownModule)
	_, err = Load("missing", h.env)
	assert.ErrorIs(t, err, datastore.ErrNotFound)
	for _, bad := range []string{"", "../etc", "a/b", ".hidden"} {
		_, err = Load(bad, h.env)
		assert.ErrorIs(t, err, ErrInvalidName, bad)
	}
}

func TestSetupSavesData(t *testing.T) {
	h := newHarness(t)
	h.custom(t, "svc")

	loaded, err := Load("svc", h.env)
	require.NoError(t, err)
	assert.Equal(t, []string{"./run.sh"}, loaded.Data().GetStrings("command"))
	assert.Equal(t, "UP", loaded.Data().GetString("ready", ""))
}

func TestSetupPrompts(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()
	h.env.In = strings.NewReader(dir + "\n./serve --fast\n")
	srv, err := Create("svc", "custom", h.env)
	require.NoError(t, err)

	require.NoError(t, srv.Setup(context.Background(), gamemodule.ConfigureOptions{Ask: true}))
	assert.Equal(t, dir, srv.Data().GetString("dir", ""))
	assert.Equal(t, []string{"./serve", "--fast"}, srv.Data().GetStrings("command"))
	assert.Contains(t, h.out.String(), "Command line to start the server")
}

func TestStartWaitsForReady(t *testing.T) {
	h := newHarness(t)
	srv := h.custom(t, "svc")
	h.sessions.output = "booting\nUP and running\n"

	require.NoError(t, srv.Start(context.Background(), StartOptions{}))
	assert.Equal(t, [][]string{{"./run.sh"}}, h.sessions.started)
	assert.Equal(t, srv.Data().GetString("dir", ""), h.sessions.dirs[0])
	assert.Equal(t, ReadyMarker+"\n", h.out.String())
	assert.True(t, srv.Running(context.Background()))

	err := srv.Start(context.Background(), StartOptions{})
	assert.ErrorIs(t, err, ErrRunning)
}

func TestStartNotReady(t *testing.T) {
	h := newHarness(t)
	srv := h.custom(t, "svc")
	h.env.Settings.Server.ReadyTimeout.Duration = 200 * time.Millisecond
	srv.env = h.env
	h.sessions.output = "booting\n"

	err := srv.Start(context.Background(), StartOptions{})
	assert.ErrorIs(t, err, ErrNotReady)
	assert.NotContains(t, h.out.String(), ReadyMarker)
}

func TestStartSessionExits(t *testing.T) {
	h := newHarness(t)
	srv := h.custom(t, "svc")
	h.sessions.output = "crashed\n"
	h.sessions.lifetime = 20 * time.Millisecond

	err := srv.Start(context.Background(), StartOptions{})
	assert.ErrorIs(t, err, ErrExited)
}

func TestStartFollow(t *testing.T) {
	h := newHarness(t)
	srv := h.custom(t, "svc")
	h.sessions.output = "booting\nUP\n"
	h.sessions.lifetime = 500 * time.Millisecond

	require.NoError(t, srv.Start(context.Background(), StartOptions{Follow: true}))
	assert.Equal(t, "booting\nUP\n"+ReadyMarker+"\n", h.out.String())
}

func TestStartWithoutReadyCheck(t *testing.T) {
	h := newHarness(t)
	srv, err := Create("svc", "custom", h.env)
	require.NoError(t, err)
	require.NoError(t, srv.Setup(context.Background(), gamemodule.ConfigureOptions{Args: []string{t.TempDir(), "./run.sh"}}))

	require.NoError(t, srv.Start(context.Background(), StartOptions{}))
	assert.Equal(t, ReadyMarker+"\n", h.out.String())
}

func TestStop(t *testing.T) {
	h := newHarness(t)
	srv := h.custom(t, "svc")
	ctx := context.Background()

	assert.ErrorIs(t, srv.Stop(ctx), ErrNotRunning)

	h.sessions.markRunning("svc")
	h.sessions.stopAfter = 2
	require.NoError(t, srv.Stop(ctx))
	assert.Equal(t, []string{"\nstop\n", "\nstop\n"}, h.sessions.stuffed)
	assert.Contains(t, h.out.String(), "svc isn't stopping after 1 attempts")
	assert.Zero(t, h.sessions.quits)
}

func TestStopKills(t *testing.T) {
	h := newHarness(t)
	srv := h.custom(t, "svc")
	ctx := context.Background()

	h.sessions.markRunning("svc")
	require.NoError(t, srv.Stop(ctx))
	assert.Len(t, h.sessions.stuffed, gamemodule.DefaultMaxStopWait)
	assert.Equal(t, 1, h.sessions.quits)
	assert.Contains(t, h.out.String(), "Killing svc")

	h.sessions.markRunning("svc")
	h.sessions.ignoreQuit = true
	assert.ErrorIs(t, srv.Stop(ctx), ErrStopFailed)
}

func TestStopRespectsContext(t *testing.T) {
	h := newHarness(t)
	srv := h.custom(t, "svc")
	h.env.Settings.Server.StopCheckInterval.Duration = time.Hour
	srv.env = h.env
	h.sessions.markRunning("svc")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, srv.Stop(ctx), context.DeadlineExceeded)
}

func TestMessageAndConnect(t *testing.T) {
	h := newHarness(t)
	srv := h.custom(t, "svc")
	ctx := context.Background()

	assert.ErrorIs(t, srv.Message(ctx, gamemodule.Message{Text: "hi"}), ErrNotRunning)
	assert.ErrorIs(t, srv.Connect(ctx), ErrNotRunning)

	h.sessions.markRunning("svc")
	require.NoError(t, srv.Message(ctx, gamemodule.Message{Text: "hi"}))
	require.NoError(t, srv.Connect(ctx))
	assert.Equal(t, []string{"\nsay hi\n"}, h.sessions.stuffed)
	assert.Equal(t, 1, h.sessions.connects)
}

func TestStatus(t *testing.T) {
	h := newHarness(t)
	srv := h.custom(t, "svc")

	require.NoError(t, srv.Status(context.Background(), 0))
	assert.Equal(t, "svc is not running\n", h.out.String())

	h.out.Reset()
	h.sessions.markRunning("svc")
	require.NoError(t, srv.Status(context.Background(), 1))
	assert.Contains(t, h.out.String(), "svc is running\n")
	assert.Contains(t, h.out.String(), "module: Custom command (custom)")
	assert.Contains(t, h.out.String(), h.sessions.LogPath("svc"))
}

func TestSet(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	srv := h.custom(t, "svc")

	require.NoError(t, srv.Set(ctx, "extra.tags", "[]"))
	require.NoError(t, srv.Set(ctx, "extra.count", "3"))
	assert.ErrorIs(t, srv.Set(ctx, "module", "minecraft"), gamemodule.ErrReadOnly)

	loaded, err := Load("svc", h.env)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Data().GetInt("extra.count", 0))
	tags, ok := loaded.Data().Get("extra.tags")
	require.True(t, ok)
	assert.Equal(t, []any{}, tags)
	assert.Equal(t, "custom", loaded.Data().GetString("module", ""))

	mc, err := Create("mc", "minecraft", h.env)
	require.NoError(t, err)
	require.NoError(t, mc.Set(ctx, "port", "25570"))
	assert.Equal(t, 25570, mc.Data().GetInt("port", 0))
	assert.ErrorIs(t, mc.Set(ctx, "dir", "/tmp"), gamemodule.ErrReadOnly)
}

func TestDump(t *testing.T) {
	h := newHarness(t)
	srv, err := Create("mc", "minecraft", h.env)
	require.NoError(t, err)

	require.NoError(t, srv.Dump(false))
	assert.Equal(t, "{\n  \"module\": \"minecraft.vanilla\"\n}\n", h.out.String())

	h.out.Reset()
	require.NoError(t, srv.Dump(true))
	assert.Equal(t, "module: minecraft.vanilla\n", h.out.String())
}

func TestRunCommand(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	srv, err := Create("mc", "minecraft", h.env)
	require.NoError(t, err)

	names := []string{}
	for _, c := range srv.Commands() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"op", "deop"}, names)

	require.NoError(t, srv.RunCommand(ctx, "op", []string{"alice", "bob"}))
	assert.Equal(t, []string{"\nop alice\n", "\nop bob\n"}, h.sessions.stuffed)
	assert.Error(t, srv.RunCommand(ctx, "deop", nil))
	assert.ErrorIs(t, srv.RunCommand(ctx, "ban", []string{"x"}), ErrUnknownCommand)
}
