package unix

import (
	"github.com/ValentinKolb/rDBG/rpc/common"
	"github.com/ValentinKolb/rDBG/rpc/transport/base"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestListenRemovesStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rdbg.sock")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o600))

	ln, err := (&connector{}).Listen(path, common.DefaultTransportConfig())
	require.NoError(t, err)
	require.NoError(t, ln.Close())
}

func TestResolve(t *testing.T) {
	c := &connector{}
	candidates, err := c.Resolve("/tmp/x.sock")
	require.NoError(t, err)
	assert.Equal(t, []string{"/tmp/x.sock"}, candidates)

	_, err = c.Resolve("")
	assert.Error(t, err)
}

// TestDialWaitsForSocket verifies that the dialer keeps retrying the socket
// path until the listener created it
func TestDialWaitsForSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rdbg.sock")
	cfg := common.DefaultTransportConfig()
	cfg.RetryDelay = 10 * time.Millisecond
	cfg.PollInterval = 10 * time.Millisecond

	clientSvc := base.NewService()
	defer clientSvc.Close()
	d, err := NewDialer(clientSvc, path, cfg, nil)
	require.NoError(t, err)
	defer d.Release()

	serverSvc := base.NewService()
	defer serverSvc.Close()

	listenerCh := make(chan *base.Listener, 1)
	go func() {
		time.Sleep(100 * time.Millisecond)
		l, err := NewListener(serverSvc, path, cfg, nil)
		if err != nil {
			close(listenerCh)
			return
		}
		_ = l.Start(-1)
		listenerCh <- l
	}()

	require.NoError(t, d.Start(2*time.Second))
	assert.True(t, d.IsConnected())

	l, ok := <-listenerCh
	require.True(t, ok, "listener could not be created")
	defer l.Release()

	require.Eventually(t, func() bool {
		serverSvc.PollOne()
		return l.IsConnected()
	}, 2*time.Second, time.Millisecond)
}
