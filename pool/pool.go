// Package pool implements the remote connection pool described in
// spec.md §3/§4.2: a process-lifetime map from (protocol, host, port)
// to a live remote.Conn, created lazily and never closed by the VFD
// layer. It is a thin domain wrapper around the generic lib/cache.Cache.
package pool

import (
	"fmt"

	"github.com/vfdstore/vfd/lib/cache"
	"github.com/vfdstore/vfd/lib/pacer"
	"github.com/vfdstore/vfd/remote"
	"github.com/vfdstore/vfd/vfderrors"
	"github.com/vfdstore/vfd/vfdlog"
)

// Pool maps endpoint strings to live remote.Conn instances.
type Pool struct {
	cache *cache.Cache
	pacer *pacer.Pacer
}

// New creates an empty Pool. Entries never expire: remote connections
// live for the process's lifetime (spec §5). Dialing a fresh endpoint
// is paced: a remote file system may be transiently unreachable right
// when a slot needs to be reopened (spec §8 scenario 3), so a dial
// failure is retried with exponential backoff rather than surfaced
// immediately as ReopenFailed.
func New() *Pool {
	return &Pool{
		cache: cache.New(),
		pacer: pacer.New(pacer.RetriesOption(2)),
	}
}

func key(protocol, host string, port int) string {
	return fmt.Sprintf("%s://%s:%d", protocol, host, port)
}

// Get returns the Conn for (protocol, host, port), dialing one via the
// registered driver on first use.
func (p *Pool) Get(protocol, host string, port int, options map[string]string) (remote.Conn, error) {
	dialer, ok := remote.Lookup(protocol)
	if !ok {
		return nil, vfderrors.NewInvalidPath(key(protocol, host, port), "no remote driver registered for protocol "+protocol)
	}
	k := key(protocol, host, port)
	value, err := p.cache.Get(k, func(string) (interface{}, bool, error) {
		vfdlog.Debugf(vfdlog.StringObject(k), "dialing new remote connection")
		var conn remote.Conn
		dialErr := p.pacer.Call(func() (bool, error) {
			var err error
			conn, err = dialer(host, port, options)
			return err != nil, err
		})
		if dialErr != nil {
			return nil, false, dialErr
		}
		return conn, true, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(remote.Conn), nil
}

// Entries reports the number of live endpoints, for the debug HTTP
// surface's connection-pool introspection (SPEC_FULL.md "Connection
// pool introspection").
func (p *Pool) Entries() int {
	return p.cache.Entries()
}

// CloseAll closes every pooled connection. Only called at process exit
// (spec §5 says the VFD layer itself never closes a pooled connection
// during normal operation).
func (p *Pool) CloseAll() {
	for _, k := range p.cache.Keys() {
		if v, ok := p.cache.GetMaybe(k); ok {
			if conn, ok := v.(remote.Conn); ok {
				if err := conn.Close(); err != nil {
					vfdlog.Warnf(vfdlog.StringObject(k), "error closing remote connection at exit: %v", err)
				}
			}
		}
	}
	p.cache.Clear()
}
