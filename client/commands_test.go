package client

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HalfdanJ/nodeftpd/config"
)

func TestPasvReply(t *testing.T) {
	s := newTestSession(t, nil)
	s.login()

	s.send("PASV")
	msg := s.expect(227)
	p1 := testPasvPort / 256
	p2 := testPasvPort % 256
	assert.Equal(t, fmt.Sprintf("Entering Passive Mode (127,0,0,1,%d,%d)", p1, p2), msg)
}

func TestEpsvReply(t *testing.T) {
	s := newTestSession(t, nil)
	s.login()

	s.send("EPSV")
	msg := s.expect(229)
	assert.Equal(t, fmt.Sprintf("Entering Extended Passive Mode (|||%d|)", testPasvPort), msg)
}

func TestPasvPortExclusivity(t *testing.T) {
	s := newTestSession(t, nil)
	s.login()

	s.send("PORT 127,0,0,1,20,0")
	assert.Equal(t, "OK", s.expect(200))
	s.send("PASV")
	assert.Equal(t, "Bad sequence of commands.", s.expect(503))
	s.send("EPSV")
	s.expect(503)
	s.send("PORT 127,0,0,1,20,1")
	s.expect(503)
}

func TestPortAfterPasvRefused(t *testing.T) {
	s := newTestSession(t, nil)
	s.login()

	s.send("PASV")
	s.expect(227)
	s.send("PORT 127,0,0,1,20,0")
	s.expect(503)
}

func TestPortArgumentValidation(t *testing.T) {
	s := newTestSession(t, nil)
	s.login()

	s.send("PORT 127,0,0,1,999,0")
	s.expect(501)
	s.send("PORT 127,0,0,1,20")
	s.expect(501)
	s.send("EPRT |2|::1|1234|")
	s.expect(522)
	s.send("EPRT |1|127.0.0.1|0|")
	s.expect(501)
	s.send("EPRT |1|127.0.0.1|2048|")
	s.expect(200)
}

var listLineRe = regexp.MustCompile(`^[-d]([rwx-]){9} 1 \w+ \w+ +\d+ [A-Z][a-z]{2} [ \d]\d \d\d:\d\d .+\r\n$`)

func TestPasvThenList(t *testing.T) {
	s := newTestSession(t, nil)
	s.login()
	s.fs.files["/hello.txt"] = []byte("hello world")
	s.fs.dirs["/sub"] = true

	s.send("PASV")
	s.expect(227)
	s.send("LIST")
	assert.Equal(t, "Here comes the directory listing", s.expect(150))

	data, err := io.ReadAll(s.data())
	require.Nil(t, err)
	assert.Equal(t, "Transfer OK", s.expect(226))

	lines := strings.SplitAfter(string(data), "\r\n")
	require.Equal(t, "", lines[len(lines)-1])
	lines = lines[:len(lines)-1]
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.Regexp(t, listLineRe, line)
	}
	// Default sort is case-folded ascending.
	assert.Contains(t, lines[0], "hello.txt")
	assert.Contains(t, lines[1], "sub")

	// The sub-state is reset; another PASV is accepted.
	s.send("PASV")
	s.expect(227)
}

func TestNlstShortForm(t *testing.T) {
	s := newTestSession(t, nil)
	s.login()
	s.fs.files["/b.txt"] = []byte("b")
	s.fs.files["/a.txt"] = []byte("a")

	s.send("PASV")
	s.expect(227)
	s.send("NLST")
	s.expect(150)

	data, err := io.ReadAll(s.data())
	require.Nil(t, err)
	s.expect(226)
	assert.Equal(t, "a.txt\r\nb.txt\r\n", string(data))
}

func TestListHidesDotFiles(t *testing.T) {
	s := newTestSession(t, func(settings *config.ServerSettings) {
		settings.HideDotFiles = true
	})
	s.login()
	s.fs.files["/.secret"] = []byte("x")
	s.fs.files["/plain"] = []byte("y")

	s.send("PASV")
	s.expect(227)
	s.send("NLST")
	s.expect(150)
	data, err := io.ReadAll(s.data())
	require.Nil(t, err)
	s.expect(226)
	assert.Equal(t, "plain\r\n", string(data))
}

func TestListStripsOptions(t *testing.T) {
	s := newTestSession(t, nil)
	s.login()
	s.fs.files["/f"] = []byte("x")

	s.send("PASV")
	s.expect(227)
	s.send("NLST -la /")
	s.expect(150)
	data, err := io.ReadAll(s.data())
	require.Nil(t, err)
	s.expect(226)
	assert.Equal(t, "f\r\n", string(data))
}

func TestRetr(t *testing.T) {
	s := newTestSession(t, nil)
	s.login()
	s.fs.files["/file.bin"] = []byte("payload bytes")

	s.send("PASV")
	s.expect(227)
	s.send("RETR /file.bin")
	assert.Equal(t, "Opening BINARY mode data connection", s.expect(150))

	data, err := io.ReadAll(s.data())
	require.Nil(t, err)
	assert.Equal(t, "payload bytes", string(data))
	assert.Equal(t, fmt.Sprintf("Closing data connection, sent %d bytes", len(data)), s.expect(226))
}

func TestRetrAsciiModeText(t *testing.T) {
	s := newTestSession(t, nil)
	s.login()
	s.fs.files["/f"] = []byte("x")

	s.send("TYPE A")
	s.expect(200)
	s.send("PASV")
	s.expect(227)
	s.send("RETR /f")
	assert.Equal(t, "Opening ASCII mode data connection", s.expect(150))
	io.ReadAll(s.data())
	s.expect(226)
}

func TestRetrMissingFile(t *testing.T) {
	s := newTestSession(t, nil)
	s.login()

	s.send("PASV")
	s.expect(227)
	s.send("RETR nope.txt")
	assert.Equal(t, "Not Found", s.expect(550))

	// The failure reset the sub-state; PASV works again.
	s.send("PASV")
	s.expect(227)
}

func TestStorAndSize(t *testing.T) {
	s := newTestSession(t, nil)
	s.login()

	s.send("PASV")
	s.expect(227)
	s.send("STOR /up.txt")
	assert.Equal(t, "Ok to send data", s.expect(150))

	data := s.data()
	_, err := data.Write([]byte("uploaded content"))
	require.Nil(t, err)
	require.Nil(t, data.Close())
	assert.Equal(t, "Closing data connection", s.expect(226))

	s.send("SIZE /up.txt")
	assert.Equal(t, fmt.Sprintf("%d", len("uploaded content")), s.expect(213))
}

func TestAppe(t *testing.T) {
	s := newTestSession(t, nil)
	s.login()
	s.fs.files["/log"] = []byte("first|")

	s.send("PASV")
	s.expect(227)
	s.send("APPE /log")
	s.expect(150)

	data := s.data()
	_, err := data.Write([]byte("second"))
	require.Nil(t, err)
	require.Nil(t, data.Close())
	s.expect(226)

	assert.Equal(t, "first|second", string(s.fs.files["/log"]))
}

func TestDeleRnfrRnto(t *testing.T) {
	s := newTestSession(t, nil)
	s.login()
	s.fs.files["/old"] = []byte("data")

	s.send("RNTO /new")
	s.expect(503)

	s.send("RNFR /old")
	s.expect(350)
	s.send("RNTO /new")
	s.expect(250)
	assert.NotContains(t, s.fs.files, "/old")
	assert.Contains(t, s.fs.files, "/new")

	s.send("RNFR /missing")
	s.expect(550)

	s.send("DELE /new")
	s.expect(250)
	s.send("DELE /new")
	s.expect(550)
}

func TestMkdCwdPwdRmd(t *testing.T) {
	s := newTestSession(t, nil)
	s.login()

	s.send("MKD /work")
	assert.Equal(t, `"/work" created`, s.expect(257))
	s.send("CWD /work")
	s.expect(250)
	s.send("PWD")
	assert.Equal(t, `"/work" is current directory`, s.expect(257))

	s.send("CDUP")
	s.expect(250)
	s.send("PWD")
	assert.Equal(t, `"/" is current directory`, s.expect(257))

	s.send("CWD /nope")
	s.expect(550)
	s.send("RMD /work")
	s.expect(250)
}

func TestCwdRelativeAndDotDot(t *testing.T) {
	s := newTestSession(t, nil)
	s.login()
	s.fs.dirs["/a"] = true
	s.fs.dirs["/a/b"] = true

	s.send("CWD a")
	s.expect(250)
	s.send("CWD b")
	s.expect(250)
	s.send("PWD")
	assert.Equal(t, `"/a/b" is current directory`, s.expect(257))
	s.send("CWD ..")
	s.expect(250)
	s.send("PWD")
	assert.Equal(t, `"/a" is current directory`, s.expect(257))
}

func TestMdtmFormat(t *testing.T) {
	s := newTestSession(t, nil)
	s.login()
	s.fs.files["/f"] = []byte("x")

	s.send("MDTM /f")
	msg := s.expect(213)
	assert.Regexp(t, `^\d{14}$`, msg)
}

func TestStatFile(t *testing.T) {
	s := newTestSession(t, nil)
	s.login()
	s.fs.files["/f"] = []byte("x")

	s.send("STAT /f")
	lines := s.fullReply(213)
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Equal(t, "213-Status follows", lines[0])
	assert.Contains(t, lines[1], "f")
	assert.Equal(t, "213 End of status", lines[len(lines)-1])
}

func TestStatServer(t *testing.T) {
	s := newTestSession(t, nil)
	s.login()

	s.send("STAT")
	lines := s.fullReply(213)
	assert.Contains(t, strings.Join(lines, "\n"), "Logged in as anonymous")
}
