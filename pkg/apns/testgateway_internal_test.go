package apns

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/binary"
	"encoding/pem"
	"io"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testPKI holds a self-signed gateway identity and a client identity.
type testPKI struct {
	serverCert tls.Certificate
	clientCert tls.Certificate
	clientKey  *ecdsa.PrivateKey
	roots      *x509.CertPool
}

func newTestPKI(t *testing.T) *testPKI {
	t.Helper()
	serverCert, serverLeaf, _ := selfSigned(t, "test-gateway")
	clientCert, _, clientKey := selfSigned(t, "test-client")

	roots := x509.NewCertPool()
	roots.AddCert(serverLeaf)
	return &testPKI{serverCert: serverCert, clientCert: clientCert, clientKey: clientKey, roots: roots}
}

func selfSigned(t *testing.T, cn string) (tls.Certificate, *x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}, leaf, key
}

// writeClientPem stores the client identity as a single PEM file.
func (p *testPKI) writeClientPem(t *testing.T) string {
	t.Helper()
	keyDER, err := x509.MarshalPKCS8PrivateKey(p.clientKey)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "client.pem")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, pem.Encode(f, &pem.Block{Type: "CERTIFICATE", Bytes: p.clientCert.Certificate[0]}))
	require.NoError(t, pem.Encode(f, &pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}))
	return path
}

func (p *testPKI) config(port int, persistent bool) Config {
	return Config{
		Host:         "127.0.0.1",
		Port:         port,
		FeedbackPort: port,
		Persistent:   persistent,
		Certificate:  p.clientCert,
		RootCAs:      p.roots,
	}
}

func (p *testPKI) listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{p.serverCert},
		ClientAuth:   tls.RequireAnyClientCert,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	return ln
}

func listenerPort(ln net.Listener) int {
	return ln.Addr().(*net.TCPAddr).Port
}

type receivedFrame struct {
	conn    int
	token   []byte
	payload []byte
}

// testGateway decodes simple-format frames from every accepted connection.
type testGateway struct {
	ln     net.Listener
	mu     sync.Mutex
	conns  int
	frames []receivedFrame
}

func startTestGateway(t *testing.T, pki *testPKI) *testGateway {
	t.Helper()
	g := &testGateway{ln: pki.listen(t)}
	go g.serve()
	return g
}

func (g *testGateway) port() int { return listenerPort(g.ln) }

func (g *testGateway) serve() {
	for {
		c, err := g.ln.Accept()
		if err != nil {
			return
		}
		g.mu.Lock()
		g.conns++
		id := g.conns
		g.mu.Unlock()
		go g.handle(id, c)
	}
}

func (g *testGateway) handle(id int, c net.Conn) {
	defer c.Close()
	header := make([]byte, FrameHeaderSize)
	for {
		if _, err := io.ReadFull(c, header); err != nil {
			return
		}
		n := int(binary.BigEndian.Uint16(header[FrameHeaderSize-2:]))
		frame := make([]byte, FrameHeaderSize+n)
		copy(frame, header)
		if _, err := io.ReadFull(c, frame[FrameHeaderSize:]); err != nil {
			return
		}
		token, payload, err := DecodeFrame(frame)
		if err != nil {
			return
		}
		g.mu.Lock()
		g.frames = append(g.frames, receivedFrame{conn: id, token: token, payload: payload})
		g.mu.Unlock()
	}
}

func (g *testGateway) received() []receivedFrame {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]receivedFrame, len(g.frames))
	copy(out, g.frames)
	return out
}

func (g *testGateway) connections() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.conns
}

// rejectingListener accepts TCP connections and drops them at once, so
// every TLS handshake against it fails.
type rejectingListener struct {
	ln      net.Listener
	mu      sync.Mutex
	accepts int
}

func startRejectingListener(t *testing.T) *rejectingListener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	r := &rejectingListener{ln: ln}
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			r.mu.Lock()
			r.accepts++
			r.mu.Unlock()
			_ = c.Close()
		}
	}()
	return r
}

func (r *rejectingListener) port() int { return listenerPort(r.ln) }

func (r *rejectingListener) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accepts
}

const testToken = "3e1d3b5c4f2a6b7c8d9e0f1a2b3c4d5e6f708192a3b4c5d6e7f8091a2b3c4d5e"

// feedbackServer streams body to every client and closes the session.
func startFeedbackServer(t *testing.T, pki *testPKI, body []byte) int {
	t.Helper()
	ln := pki.listen(t)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				if err := c.(*tls.Conn).Handshake(); err != nil {
					return
				}
				_, _ = c.Write(body)
			}(c)
		}
	}()
	return listenerPort(ln)
}

// startSilentFeedbackServer completes the handshake and then sends nothing
// until the test ends.
func startSilentFeedbackServer(t *testing.T, pki *testPKI) int {
	t.Helper()
	ln := pki.listen(t)
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				if err := c.(*tls.Conn).Handshake(); err != nil {
					return
				}
				<-done
			}(c)
		}
	}()
	return listenerPort(ln)
}

func feedbackChunk(ts uint32, token []byte) []byte {
	chunk := make([]byte, 6, FeedbackRecordSize)
	binary.BigEndian.PutUint32(chunk[0:4], ts)
	binary.BigEndian.PutUint16(chunk[4:6], uint16(len(token)))
	return append(chunk, token...)
}
