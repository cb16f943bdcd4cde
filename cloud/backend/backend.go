// Package backend is the contract remote workers use to rent compute nodes,
// move files to and from them and run commands on them.
package backend

//go:generate mockgen -source=backend.go -package=backend -destination=backend_mock.go

import (
	"context"

	"github.com/pkg/errors"
)

type NodeId string

// Node is a remote machine reachable over ssh.
type Node struct {
	Id      NodeId
	Address string
	Tags    map[string]string
}

// Provider status check value meaning the node is usable.
const CheckPassed = "passed"

// NodeStatus holds the provider's health checks of a node.
type NodeStatus struct {
	InstanceCheck string
	SystemCheck   string
}

func (s *NodeStatus) Ready() bool {
	return s != nil && s.InstanceCheck == CheckPassed
}

type Backend interface {
	// LaunchNodes starts n nodes carrying tags.
	LaunchNodes(ctx context.Context, n int, tags map[string]string) ([]Node, error)
	TerminateNode(ctx context.Context, id NodeId) error
	// ListNodeIDs returns the running nodes this backend manages.
	ListNodeIDs(ctx context.Context) ([]NodeId, error)
	// NodeStatus returns nil while the node does not report any status yet.
	NodeStatus(ctx context.Context, id NodeId) (*NodeStatus, error)

	Upload(ctx context.Context, id NodeId, localPath, remotePath string) error
	Download(ctx context.Context, id NodeId, remotePath, localPath string) error

	// RunCommand runs a shell command on the node and returns its stdout.
	// A non-zero exit is an error.
	RunCommand(ctx context.Context, id NodeId, cmd string) (string, error)
	// RunCommandStatus runs a shell command on the node and returns its exit code.
	RunCommandStatus(ctx context.Context, id NodeId, cmd string) (int, error)

	TagNode(ctx context.Context, id NodeId, key, value string) error
	ListTags(ctx context.Context, id NodeId) (map[string]string, error)
	DeleteTag(ctx context.Context, id NodeId, key string) error
	// FindNodesByTag returns running managed nodes whose tag key equals value.
	FindNodesByTag(ctx context.Context, key, value string) ([]NodeId, error)
}

var ErrNodeNotFound = errors.New("node not found")

type permanentError struct {
	error
}

func (e permanentError) Cause() error { return e.error }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err}
}

// IsPermanent reports whether err, or what it wraps, should not be retried.
func IsPermanent(err error) bool {
	for err != nil {
		if _, ok := err.(permanentError); ok {
			return true
		}
		if err == ErrNodeNotFound {
			return true
		}
		c, ok := err.(interface{ Cause() error })
		if !ok {
			return false
		}
		err = c.Cause()
	}
	return false
}
