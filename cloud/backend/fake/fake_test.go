package fake

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glemaitre/ramp-board-1/cloud/backend"
)

func TestNodeLifecycle(t *testing.T) {
	b := NewBackend(t.TempDir())
	b.BootPolls = 1
	ctx := context.Background()

	nodes, err := b.LaunchNodes(ctx, 2, map[string]string{"role": "train"})
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	st, err := b.NodeStatus(ctx, nodes[0].Id)
	require.NoError(t, err)
	assert.Nil(t, st)
	st, err = b.NodeStatus(ctx, nodes[0].Id)
	require.NoError(t, err)
	assert.True(t, st.Ready())

	require.NoError(t, b.TagNode(ctx, nodes[1].Id, "Name", "sub"))
	ids, err := b.FindNodesByTag(ctx, "Name", "sub")
	require.NoError(t, err)
	assert.Equal(t, []backend.NodeId{nodes[1].Id}, ids)

	require.NoError(t, b.TerminateNode(ctx, nodes[1].Id))
	ids, _ = b.ListNodeIDs(ctx)
	assert.Equal(t, []backend.NodeId{nodes[0].Id}, ids)
	err = b.TerminateNode(ctx, nodes[1].Id)
	assert.Equal(t, backend.ErrNodeNotFound, errors.Cause(err))
}

func TestRsyncSemantics(t *testing.T) {
	local := t.TempDir()
	b := NewBackend(t.TempDir())
	ctx := context.Background()
	nodes, _ := b.LaunchNodes(ctx, 1, nil)
	id := nodes[0].Id

	sub := filepath.Join(local, "sub")
	require.NoError(t, os.MkdirAll(filepath.Join(sub, "out", "fold_0"), 0777))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "out", "fold_0", "y.npz"), []byte("y"), 0666))

	require.NoError(t, b.Upload(ctx, id, sub, "kit/submissions/"))
	_, err := os.Stat(b.RemotePath(id, "kit/submissions/sub/out/fold_0/y.npz"))
	require.NoError(t, err)

	dst := filepath.Join(local, "preds", "sub")
	require.NoError(t, b.Download(ctx, id, "kit/submissions/sub/out/", dst))
	got, err := os.ReadFile(filepath.Join(dst, "fold_0", "y.npz"))
	require.NoError(t, err)
	assert.Equal(t, "y", string(got))
}

func TestHandlerAndErrors(t *testing.T) {
	b := NewBackend(t.TempDir())
	b.Handler = func(id backend.NodeId, root, cmd string) (string, int, error) {
		if cmd == "fail" {
			return "", 2, nil
		}
		return "ok", 0, nil
	}
	ctx := context.Background()
	nodes, _ := b.LaunchNodes(ctx, 1, nil)
	id := nodes[0].Id

	out, err := b.RunCommand(ctx, id, "ls")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	code, err := b.RunCommandStatus(ctx, id, "fail")
	require.NoError(t, err)
	assert.Equal(t, 2, code)
	assert.Equal(t, []string{"ls", "fail"}, b.Commands(id))

	b.Errs["Upload"] = errors.New("network down")
	assert.EqualError(t, b.Upload(ctx, id, "x", "y"), "network down")
}
