package transport

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"math/big"
	"net"
	"time"

	quic "github.com/quic-go/quic-go"
)

// QUICTransport is the reference Transport implementation named in
// SPEC_FULL.md's domain stack table: "the submessage layer is
// transport-agnostic; this is one concrete external collaborator."
// Grounded on sockatz/common.QUICProxyConn's Accept/Dial pair, adapted
// from that type's custom net.PacketConn plumbing to quic-go's simpler
// address-based ListenAddr/DialAddr entry points.
type QUICTransport struct {
	tlsConf *tls.Config
	qcfg    *quic.Config
}

// NewQUICTransport creates a QUICTransport. A nil tlsConf causes one to
// be generated with a throwaway self-signed certificate, suitable for
// development and tests; production deployments should supply a real
// tls.Config.
func NewQUICTransport(tlsConf *tls.Config, qcfg *quic.Config) (*QUICTransport, error) {
	if tlsConf == nil {
		var err error
		tlsConf, err = generateSelfSignedTLSConfig()
		if err != nil {
			return nil, err
		}
	}
	return &QUICTransport{tlsConf: tlsConf, qcfg: qcfg}, nil
}

// Dial implements Transport.
func (t *QUICTransport) Dial(ctx context.Context, locator string) (net.Conn, error) {
	conn, err := quic.DialAddr(ctx, locator, t.tlsConf, t.qcfg)
	if err != nil {
		return nil, err
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "open stream failed")
		return nil, err
	}
	return &quicConn{Stream: stream, conn: conn}, nil
}

// Listen implements Transport.
func (t *QUICTransport) Listen(ctx context.Context, localAddr string) (Listener, error) {
	l, err := quic.ListenAddr(localAddr, t.tlsConf, t.qcfg)
	if err != nil {
		return nil, err
	}
	return &quicListener{l: l}, nil
}

type quicListener struct {
	l *quic.Listener
}

func (ql *quicListener) Accept(ctx context.Context) (net.Conn, error) {
	conn, err := ql.l.Accept(ctx)
	if err != nil {
		return nil, err
	}
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		conn.CloseWithError(0, "accept stream failed")
		return nil, err
	}
	return &quicConn{Stream: stream, conn: conn}, nil
}

func (ql *quicListener) Addr() net.Addr { return ql.l.Addr() }
func (ql *quicListener) Close() error   { return ql.l.Close() }

// quicConn adapts a single QUIC stream plus its owning connection into
// a net.Conn, the same shape as sockatz/common.QuicConn.
type quicConn struct {
	quic.Stream
	conn quic.Connection
}

func (c *quicConn) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *quicConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func (c *quicConn) SetDeadline(t time.Time) error {
	if err := c.Stream.SetReadDeadline(t); err != nil {
		return err
	}
	return c.Stream.SetWriteDeadline(t)
}

// generateSelfSignedTLSConfig builds a throwaway ECDSA certificate for
// QUIC's mandatory TLS handshake, the equivalent of this codebase's
// http/common.GenerateTLSConfig helper (not reachable from this
// module), needed here since the kernel has no external PKI dependency
// of its own for transport-level TLS.
func generateSelfSignedTLSConfig() (*tls.Config, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return nil, err
	}
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * 365 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	if err != nil {
		return nil, err
	}
	keyDER, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return nil, err
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"meridian-rtps"},
	}, nil
}
