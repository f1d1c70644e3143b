// Package router implements the path classification described in
// spec.md §4.1: a path is either Local or Remote{protocol, host, port,
// options}, with a conversion to the back-end's native path form.
package router

import (
	"strconv"
	"strings"

	"github.com/vfdstore/vfd/vfderrors"
)

const schemeSep = "://"

// Kind distinguishes a Local path from a Remote one.
type Kind int

const (
	// Local is any path with no "://" scheme, or the literal "local://" scheme.
	Local Kind = iota
	// Remote is any "<protocol>://..." path other than "local://".
	Remote
)

// Classification is the result of routing a path.
type Classification struct {
	Kind     Kind
	Protocol string
	Host     string
	Port     int
	Options  map[string]string
	// UnixPath is the path as handed to the back-end: the local path
	// verbatim for Kind==Local, or the unix-path segment after
	// host:port for Kind==Remote.
	UnixPath string
}

// Endpoint returns the "host:port" form of the remote endpoint. It is
// only meaningful when Kind==Remote. The remote connection pool does not
// use it as its key: package pool keys connections by protocol as well
// as host and port.
func (c Classification) Endpoint() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// Route classifies path per spec §4.1.
func Route(path string) (Classification, error) {
	if strings.HasPrefix(path, "local://") {
		return Classification{Kind: Local, UnixPath: strings.TrimPrefix(path, "local://")}, nil
	}
	if !strings.Contains(path, schemeSep) {
		return Classification{Kind: Local, UnixPath: path}, nil
	}

	idx := strings.Index(path, schemeSep)
	protocol := path[:idx]
	if protocol == "" {
		return Classification{}, vfderrors.NewInvalidPath(path, "empty protocol before \"://\"")
	}
	rest := path[idx+len(schemeSep):]

	options := map[string]string{"replica": "3"}
	if strings.HasPrefix(rest, "{") {
		end := strings.IndexByte(rest, '}')
		if end < 0 {
			return Classification{}, vfderrors.NewInvalidPath(path, "unterminated options block")
		}
		block := rest[1:end]
		rest = rest[end+1:]
		for _, kv := range strings.Split(block, ",") {
			kv = strings.TrimSpace(kv)
			if kv == "" {
				continue
			}
			parts := strings.SplitN(kv, "=", 2)
			if len(parts) != 2 {
				return Classification{}, vfderrors.NewInvalidPath(path, "malformed option "+kv)
			}
			options[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}

	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return Classification{}, vfderrors.NewInvalidPath(path, "missing unix path after host:port")
	}
	hostport := rest[:slash]
	unixPath := rest[slash:]

	colon := strings.LastIndexByte(hostport, ':')
	if colon < 0 {
		return Classification{}, vfderrors.NewInvalidPath(path, "missing port")
	}
	host := hostport[:colon]
	portStr := hostport[colon+1:]
	if host == "" {
		return Classification{}, vfderrors.NewInvalidPath(path, "empty host")
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port >= 65536 {
		return Classification{}, vfderrors.NewInvalidPath(path, "port must be a positive integer less than 65536")
	}

	return Classification{
		Kind:     Remote,
		Protocol: protocol,
		Host:     host,
		Port:     port,
		Options:  options,
		UnixPath: unixPath,
	}, nil
}

// Replica returns the configured replication factor (default 3),
// parsed from the "replica=<N>" option (spec §4.1).
func (c Classification) Replica() int {
	v, ok := c.Options["replica"]
	if !ok {
		return 3
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 3
	}
	return n
}
