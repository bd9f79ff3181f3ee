package server

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sirosfoundation/tcp-responder/pkg/config"
)

// freePort grabs an ephemeral port from the kernel and releases it so
// the test can bind it through the code under test.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func echoSpec(port int) config.ServerSpec {
	return config.ServerSpec{Type: config.ServerTypeEcho, Port: port, BindAddress: "127.0.0.1"}
}

func webSpec(port int, content string) config.ServerSpec {
	return config.ServerSpec{Type: config.ServerTypeWeb, Port: port, BindAddress: "127.0.0.1", Content: content}
}

func TestInstance_BindAndStop(t *testing.T) {
	inst, err := NewInstance(echoSpec(freePort(t)), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, InstanceIdle, inst.State())

	require.NoError(t, inst.Bind())
	assert.Equal(t, InstanceStarting, inst.State())
	assert.NotEmpty(t, inst.Addr())

	inst.Start()
	assert.True(t, inst.Running())

	require.NoError(t, inst.Stop(time.Second))
	assert.Equal(t, InstanceStopped, inst.State())
	assert.False(t, inst.Running())
}

func TestInstance_BindPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	inst, err := NewInstance(echoSpec(port), zap.NewNop())
	require.NoError(t, err)

	err = inst.Bind()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPortInUse)

	var bindErr *BindError
	require.ErrorAs(t, err, &bindErr)
	assert.Equal(t, port, bindErr.Port)
	assert.Equal(t, InstanceFailed, inst.State())
}

func TestInstance_BindInvalidAddress(t *testing.T) {
	spec := config.ServerSpec{Type: config.ServerTypeEcho, Port: freePort(t), BindAddress: "this-host-does-not-resolve.invalid"}
	inst, err := NewInstance(spec, zap.NewNop())
	require.NoError(t, err)

	err = inst.Bind()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestInstance_EchoServes(t *testing.T) {
	inst, err := NewInstance(echoSpec(freePort(t)), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, inst.Bind())
	inst.Start()
	defer inst.Stop(time.Second)

	conn, err := net.Dial("tcp", inst.Addr())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))
}

func TestInstance_ConnectionFailureIsIsolated(t *testing.T) {
	inst, err := NewInstance(echoSpec(freePort(t)), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, inst.Bind())
	inst.Start()
	defer inst.Stop(time.Second)

	// Abort one connection mid-flight.
	bad, err := net.Dial("tcp", inst.Addr())
	require.NoError(t, err)
	require.NoError(t, bad.(*net.TCPConn).SetLinger(0))
	_, err = bad.Write([]byte("boom"))
	require.NoError(t, err)
	require.NoError(t, bad.Close())

	// A sibling connection must be unaffected.
	good, err := net.Dial("tcp", inst.Addr())
	require.NoError(t, err)
	defer good.Close()

	_, err = good.Write([]byte("ok"))
	require.NoError(t, err)

	buf := make([]byte, 2)
	_, err = io.ReadFull(good, buf)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(buf))
	assert.True(t, inst.Running())
}

func TestInstance_StopClosesListener(t *testing.T) {
	inst, err := NewInstance(echoSpec(freePort(t)), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, inst.Bind())
	addr := inst.Addr()
	inst.Start()

	require.NoError(t, inst.Stop(time.Second))

	_, err = net.DialTimeout("tcp", addr, 200*time.Millisecond)
	assert.Error(t, err, "listener must not accept after stop")
}

func TestInstance_StopForceClosesPastGrace(t *testing.T) {
	inst, err := NewInstance(echoSpec(freePort(t)), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, inst.Bind())
	inst.Start()

	// Hold a connection open through the grace period.
	conn, err := net.Dial("tcp", inst.Addr())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("x"))
	require.NoError(t, err)

	buf := make([]byte, 1)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	require.Equal(t, 1, inst.ActiveConnections())

	grace := 100 * time.Millisecond
	start := time.Now()
	err = inst.Stop(grace)
	elapsed := time.Since(start)

	require.Error(t, err, "a forced close must be reported")
	assert.Less(t, elapsed, grace+time.Second, "stop must terminate within the grace period plus tolerance")
	assert.Equal(t, InstanceStopped, inst.State())
	assert.Equal(t, 0, inst.ActiveConnections())
}

func TestInstance_StopIdempotent(t *testing.T) {
	inst, err := NewInstance(echoSpec(freePort(t)), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, inst.Bind())
	inst.Start()

	require.NoError(t, inst.Stop(time.Second))
	require.NoError(t, inst.Stop(time.Second))
	assert.Equal(t, InstanceStopped, inst.State())
}

func TestInstance_StopBeforeStart(t *testing.T) {
	inst, err := NewInstance(echoSpec(freePort(t)), zap.NewNop())
	require.NoError(t, err)

	// Never bound: stop is a no-op.
	require.NoError(t, inst.Stop(time.Second))
}

func TestClassifyBindError(t *testing.T) {
	_, err := net.Listen("tcp", "this-host-does-not-resolve.invalid:1")
	require.Error(t, err)

	be := classifyBindError("this-host-does-not-resolve.invalid:1", 1, err)
	assert.ErrorIs(t, be, ErrInvalidAddress)
	assert.ErrorIs(t, be, err)
}

func TestBindError_UnknownKindStillWraps(t *testing.T) {
	cause := errors.New("something else entirely")
	be := classifyBindError("127.0.0.1:9000", 9000, cause)

	assert.Nil(t, be.Kind)
	assert.ErrorIs(t, be, cause)
	assert.NotEmpty(t, be.Error())
}
