package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteLocalNoScheme(t *testing.T) {
	c, err := Route("/var/lib/data/base/1/16384")
	require.NoError(t, err)
	assert.Equal(t, Local, c.Kind)
	assert.Equal(t, "/var/lib/data/base/1/16384", c.UnixPath)
}

func TestRouteLocalExplicitScheme(t *testing.T) {
	c, err := Route("local:///var/lib/data/base/1/16384")
	require.NoError(t, err)
	assert.Equal(t, Local, c.Kind)
	assert.Equal(t, "/var/lib/data/base/1/16384", c.UnixPath)
}

func TestRouteRemoteDefaultReplica(t *testing.T) {
	c, err := Route("hdfs://namenode:9000/tmp/spill.1")
	require.NoError(t, err)
	assert.Equal(t, Remote, c.Kind)
	assert.Equal(t, "hdfs", c.Protocol)
	assert.Equal(t, "namenode", c.Host)
	assert.Equal(t, 9000, c.Port)
	assert.Equal(t, "/tmp/spill.1", c.UnixPath)
	assert.Equal(t, 3, c.Replica())
	assert.Equal(t, "namenode:9000", c.Endpoint())
}

func TestRouteRemoteWithOptionsBlock(t *testing.T) {
	c, err := Route("hdfs://{replica=5}namenode:9000/tmp/spill.1")
	require.NoError(t, err)
	assert.Equal(t, 5, c.Replica())
	assert.Equal(t, "namenode", c.Host)
	assert.Equal(t, 9000, c.Port)
}

func TestRouteRemoteWithMultipleOptions(t *testing.T) {
	c, err := Route("sftp://{replica=2,user=alice}host:22/home/alice/f")
	require.NoError(t, err)
	assert.Equal(t, 2, c.Replica())
	assert.Equal(t, "alice", c.Options["user"])
}

func TestRouteErrors(t *testing.T) {
	cases := []string{
		"hdfs://",
		"hdfs://host",
		"hdfs://host:abc/path",
		"hdfs://host:999999/path",
		"://host:1/path",
		"hdfs://{unterminated host:1/path",
		"hdfs://{badopt}host:1/path",
	}
	for _, path := range cases {
		_, err := Route(path)
		assert.Error(t, err, "path %q should fail to route", path)
	}
}

func TestRouteMissingPortOrPath(t *testing.T) {
	_, err := Route("hdfs://host/path")
	assert.Error(t, err, "missing port should be an error")

	_, err = Route("hdfs://host:9000")
	assert.Error(t, err, "missing unix path should be an error")
}
