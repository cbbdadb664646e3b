package transport

import (
	"context"
	"crypto/tls"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQUICTransportRoundTrip(t *testing.T) {
	srvCfg, err := generateSelfSignedTLSConfig()
	require.NoError(t, err)
	srv, err := NewQUICTransport(srvCfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ln, err := srv.Listen(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	clientCfg := srvCfg.Clone()
	clientCfg.InsecureSkipVerify = true
	client, err := NewQUICTransport(clientCfg, nil)
	require.NoError(t, err)

	serverDone := make(chan error, 1)
	go func() {
		conn, err := ln.Accept(ctx)
		if err != nil {
			serverDone <- err
			return
		}
		buf := make([]byte, 5)
		if _, err := io.ReadFull(conn, buf); err != nil {
			serverDone <- err
			return
		}
		if string(buf) != "hello" {
			serverDone <- errUnexpectedPayload
			return
		}
		serverDone <- nil
	}()

	clientConn, err := client.Dial(ctx, ln.Addr().String())
	require.NoError(t, err)
	_, err = clientConn.Write([]byte("hello"))
	require.NoError(t, err)

	require.NoError(t, <-serverDone)
}

var errUnexpectedPayload = &payloadErr{}

type payloadErr struct{}

func (*payloadErr) Error() string { return "unexpected payload" }

func TestGenerateSelfSignedTLSConfigProducesUsableCert(t *testing.T) {
	cfg, err := generateSelfSignedTLSConfig()
	require.NoError(t, err)
	require.Len(t, cfg.Certificates, 1)
	require.IsType(t, &tls.Config{}, cfg)
}
