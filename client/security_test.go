package client

import (
	"bufio"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HalfdanJ/nodeftpd/config"
)

func testServerCert(t *testing.T) *tls.Config {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.Nil(t, err)
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "nodeftpd-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.Nil(t, err)

	return &tls.Config{
		Certificates: []tls.Certificate{{
			Certificate: [][]byte{der},
			PrivateKey:  key,
		}},
	}
}

// The AUTH TLS upgrade followed by a login over the now-encrypted
// channel.
func TestAuthTLSThenUser(t *testing.T) {
	s := newTestSession(t, func(settings *config.ServerSettings) {
		settings.TLSConfig = testServerCert(t)
		settings.AllowUnauthorizedTLS = true
	})

	s.send("AUTH TLS")
	assert.Equal(t, "Honored", s.expect(234))

	tlsConn := tls.Client(s.conn, &tls.Config{InsecureSkipVerify: true})
	require.Nil(t, tlsConn.Handshake())

	r := bufio.NewReader(tlsConn)
	_, err := tlsConn.Write([]byte("USER alice\r\n"))
	require.Nil(t, err)
	line, err := r.ReadString('\n')
	require.Nil(t, err)
	assert.Equal(t, "331 User name okay, need password.\r\n", line)

	_, err = tlsConn.Write([]byte("PASS secret\r\n"))
	require.Nil(t, err)
	line, err = r.ReadString('\n')
	require.Nil(t, err)
	assert.Equal(t, "230 User logged in, proceed.\r\n", line)

	// PBSZ/PROT are accepted now that the channel is secure.
	_, err = tlsConn.Write([]byte("PBSZ 0\r\nPROT P\r\n"))
	require.Nil(t, err)
	line, err = r.ReadString('\n')
	require.Nil(t, err)
	assert.Equal(t, "200 PBSZ 0 successful\r\n", line)
	line, err = r.ReadString('\n')
	require.Nil(t, err)
	assert.Equal(t, "200 Protection level set to Private\r\n", line)

	// PROT levels other than Private are refused.
	_, err = tlsConn.Write([]byte("PROT S\r\n"))
	require.Nil(t, err)
	line, err = r.ReadString('\n')
	require.Nil(t, err)
	assert.Equal(t, "536 Protection level not supported\r\n", line)
}

func TestAuthArgumentValidation(t *testing.T) {
	s := newTestSession(t, func(settings *config.ServerSettings) {
		settings.TLSConfig = testServerCert(t)
	})

	s.send("AUTH SSL")
	s.expect(504)
}
