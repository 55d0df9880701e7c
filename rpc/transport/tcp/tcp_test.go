package tcp

import (
	"github.com/ValentinKolb/rDBG/rpc/common"
	"github.com/ValentinKolb/rDBG/rpc/transport/base"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net"
	"testing"
	"time"
)

func TestResolve(t *testing.T) {
	c := &connector{}

	candidates, err := c.Resolve("127.0.0.1:51123")
	require.NoError(t, err)
	assert.Equal(t, []string{"127.0.0.1:51123"}, candidates)

	candidates, err = c.Resolve(":51123")
	require.NoError(t, err)
	assert.NotEmpty(t, candidates)

	_, err = c.Resolve("missing-port")
	assert.Error(t, err)
}

func TestListenDial(t *testing.T) {
	cfg := common.DefaultTransportConfig()
	cfg.TCPKeepAliveSec = 30
	cfg.TCPLingerSec = 0

	received := make(chan common.Command, 1)

	serverSvc := base.NewService()
	defer serverSvc.Close()
	l, err := NewListener(serverSvc, "127.0.0.1:0", cfg, func(cmd common.Command) { received <- cmd })
	require.NoError(t, err)
	defer l.Release()

	clientSvc := base.NewService()
	defer clientSvc.Close()
	d, err := NewDialer(clientSvc, l.Addr().String(), cfg, nil)
	require.NoError(t, err)
	defer d.Release()

	require.NoError(t, l.Start(-1))
	require.NoError(t, d.Start(2*time.Second))

	// drive the listener service by hand, as Start does before the engine runs it
	require.Eventually(t, func() bool {
		serverSvc.PollOne()
		return l.IsConnected()
	}, 2*time.Second, time.Millisecond)

	// drive the client service until the command is written
	d.Send(common.Header{Type: common.CmdTResume, PeerID: 2, CommandID: 4}, nil)
	require.Eventually(t, func() bool {
		clientSvc.PollOne()
		serverSvc.PollOne()
		return len(received) == 1
	}, 2*time.Second, time.Millisecond)

	cmd := <-received
	assert.Equal(t, common.CmdTResume, cmd.Type())
	assert.Equal(t, uint32(4), cmd.CommandID())
}

func TestUpgradeConnectionNonTCP(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	assert.NoError(t, (&connector{}).UpgradeConnection(a, common.DefaultTransportConfig()))
}
