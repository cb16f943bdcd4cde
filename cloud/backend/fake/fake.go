// Package fake is an in-memory backend.Backend. Each node gets a directory
// standing for its filesystem, commands are answered by a Handler.
package fake

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/glemaitre/ramp-board-1/cloud/backend"
)

// Handler answers a command run on a node with its stdout and exit code.
type Handler func(id backend.NodeId, root, cmd string) (string, int, error)

type node struct {
	backend.Node
	root    string
	polls   int
	running bool
}

type Backend struct {
	// Number of NodeStatus calls reporting nothing before a node is ready.
	BootPolls int
	Handler   Handler
	// Errs makes the named method fail, e.g. Errs["Upload"].
	Errs map[string]error

	dir string

	mu         sync.Mutex
	nodes      map[backend.NodeId]*node
	next       int
	commands   map[backend.NodeId][]string
	terminated []backend.NodeId
}

// NewBackend keeps node filesystems under dir.
func NewBackend(dir string) *Backend {
	return &Backend{
		Errs:     map[string]error{},
		dir:      dir,
		nodes:    map[backend.NodeId]*node{},
		commands: map[backend.NodeId][]string{},
	}
}

func (b *Backend) fail(method string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Errs[method]
}

func (b *Backend) get(id backend.NodeId) (*node, error) {
	n, ok := b.nodes[id]
	if !ok || !n.running {
		return nil, errors.Wrapf(backend.ErrNodeNotFound, "%s", id)
	}
	return n, nil
}

func (b *Backend) LaunchNodes(ctx context.Context, count int, tags map[string]string) ([]backend.Node, error) {
	if err := b.fail("LaunchNodes"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []backend.Node
	for i := 0; i < count; i++ {
		b.next++
		id := backend.NodeId(fmt.Sprintf("i-%04d", b.next))
		root := filepath.Join(b.dir, string(id))
		if err := os.MkdirAll(root, 0777); err != nil {
			return nil, err
		}
		n := &node{
			Node: backend.Node{
				Id:      id,
				Address: fmt.Sprintf("10.0.0.%d", b.next),
				Tags:    map[string]string{},
			},
			root:    root,
			running: true,
		}
		for k, v := range tags {
			n.Tags[k] = v
		}
		b.nodes[id] = n
		out = append(out, n.Node)
	}
	return out, nil
}

func (b *Backend) TerminateNode(ctx context.Context, id backend.NodeId) error {
	if err := b.fail("TerminateNode"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	n, err := b.get(id)
	if err != nil {
		return err
	}
	n.running = false
	b.terminated = append(b.terminated, id)
	return nil
}

func (b *Backend) ListNodeIDs(ctx context.Context) ([]backend.NodeId, error) {
	if err := b.fail("ListNodeIDs"); err != nil {
		return nil, err
	}
	return b.find(func(*node) bool { return true }), nil
}

func (b *Backend) FindNodesByTag(ctx context.Context, key, value string) ([]backend.NodeId, error) {
	if err := b.fail("FindNodesByTag"); err != nil {
		return nil, err
	}
	return b.find(func(n *node) bool {
		v, ok := n.Tags[key]
		return ok && v == value
	}), nil
}

func (b *Backend) find(pred func(*node) bool) []backend.NodeId {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := []backend.NodeId{}
	for i := 1; i <= b.next; i++ {
		n := b.nodes[backend.NodeId(fmt.Sprintf("i-%04d", i))]
		if n != nil && n.running && pred(n) {
			ids = append(ids, n.Id)
		}
	}
	return ids
}

func (b *Backend) NodeStatus(ctx context.Context, id backend.NodeId) (*backend.NodeStatus, error) {
	if err := b.fail("NodeStatus"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	n, err := b.get(id)
	if err != nil {
		return nil, err
	}
	n.polls++
	if n.polls <= b.BootPolls {
		return nil, nil
	}
	return &backend.NodeStatus{InstanceCheck: backend.CheckPassed, SystemCheck: backend.CheckPassed}, nil
}

func (b *Backend) root(id backend.NodeId) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, err := b.get(id)
	if err != nil {
		return "", err
	}
	return n.root, nil
}

// RemotePath maps a path on the node to where the fake keeps it locally.
func (b *Backend) RemotePath(id backend.NodeId, p string) string {
	root, _ := b.root(id)
	return filepath.Join(root, p)
}

// Upload behaves like rsync: a source without trailing slash lands inside a
// destination ending with one.
func (b *Backend) Upload(ctx context.Context, id backend.NodeId, localPath, remotePath string) error {
	if err := b.fail("Upload"); err != nil {
		return err
	}
	root, err := b.root(id)
	if err != nil {
		return err
	}
	return rsync(localPath, filepath.Join(root, remotePath)+trailing(remotePath))
}

func (b *Backend) Download(ctx context.Context, id backend.NodeId, remotePath, localPath string) error {
	if err := b.fail("Download"); err != nil {
		return err
	}
	root, err := b.root(id)
	if err != nil {
		return err
	}
	return rsync(filepath.Join(root, remotePath)+trailing(remotePath), localPath)
}

func (b *Backend) run(id backend.NodeId, cmd string) (string, int, error) {
	root, err := b.root(id)
	if err != nil {
		return "", -1, err
	}
	b.mu.Lock()
	b.commands[id] = append(b.commands[id], cmd)
	h := b.Handler
	b.mu.Unlock()
	if h == nil {
		return "", 0, nil
	}
	return h(id, root, cmd)
}

func (b *Backend) RunCommand(ctx context.Context, id backend.NodeId, cmd string) (string, error) {
	if err := b.fail("RunCommand"); err != nil {
		return "", err
	}
	out, code, err := b.run(id, cmd)
	if err != nil {
		return out, err
	}
	if code != 0 {
		return out, backend.Permanent(errors.Errorf("%q exited with code %d", cmd, code))
	}
	return out, nil
}

func (b *Backend) RunCommandStatus(ctx context.Context, id backend.NodeId, cmd string) (int, error) {
	if err := b.fail("RunCommandStatus"); err != nil {
		return -1, err
	}
	_, code, err := b.run(id, cmd)
	return code, err
}

func (b *Backend) TagNode(ctx context.Context, id backend.NodeId, key, value string) error {
	if err := b.fail("TagNode"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	n, err := b.get(id)
	if err != nil {
		return err
	}
	n.Tags[key] = value
	return nil
}

func (b *Backend) ListTags(ctx context.Context, id backend.NodeId) (map[string]string, error) {
	if err := b.fail("ListTags"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	n, err := b.get(id)
	if err != nil {
		return nil, err
	}
	tags := map[string]string{}
	for k, v := range n.Tags {
		tags[k] = v
	}
	return tags, nil
}

func (b *Backend) DeleteTag(ctx context.Context, id backend.NodeId, key string) error {
	if err := b.fail("DeleteTag"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	n, err := b.get(id)
	if err != nil {
		return err
	}
	delete(n.Tags, key)
	return nil
}

// Commands returns what was run on a node, in order.
func (b *Backend) Commands(id backend.NodeId) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string{}, b.commands[id]...)
}

func (b *Backend) Terminated() []backend.NodeId {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]backend.NodeId{}, b.terminated...)
}

// Running counts nodes not terminated.
func (b *Backend) Running() int {
	return len(b.find(func(*node) bool { return true }))
}

func trailing(p string) string {
	if strings.HasSuffix(p, "/") {
		return "/"
	}
	return ""
}

func rsync(src, dst string) error {
	fi, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		if strings.HasSuffix(dst, "/") {
			dst = filepath.Join(dst, filepath.Base(src))
		}
		return copyFile(src, dst)
	}
	if !strings.HasSuffix(src, "/") && strings.HasSuffix(dst, "/") {
		dst = filepath.Join(dst, filepath.Base(src))
	}
	dst = filepath.Clean(dst)
	if err := os.MkdirAll(dst, 0777); err != nil {
		return err
	}
	return filepath.Walk(src, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0777)
		}
		return copyFile(p, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0777); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
