package utils

import (
	"errors"
	"fmt"
	"net"
	"path"
	"strconv"
	"strings"
)

// ParseLine splits a raw control-channel line into the command verb and
// its parameter. The trailing CRLF (or bare LF) is stripped, the verb is
// left as received; callers upper-case it.
func ParseLine(line string) (string, string) {
	line = strings.TrimRight(line, "\r\n")
	params := strings.SplitN(line, " ", 2)
	if len(params) == 1 {
		return params[0], ""
	}
	return params[0], strings.TrimSpace(params[1])
}

// WithCwd resolves a client-supplied path against the current working
// directory. Absolute arguments are cleaned and returned as-is; relative
// ones are joined with cwd. Dot-dot traversal is resolved textually.
func WithCwd(cwd, arg string) string {
	if arg == "" {
		return path.Clean(cwd)
	}
	if path.IsAbs(arg) {
		return path.Clean(arg)
	}
	return path.Join(cwd, arg)
}

// PathEscape doubles embedded quotes for 257-reply path quoting (RFC 959).
func PathEscape(p string) string {
	return strings.ReplaceAll(p, `"`, `""`)
}

// StripOptions removes leading "-x" style option words from LIST/NLST
// arguments, e.g. `-la /tmp` becomes `/tmp`.
func StripOptions(arg string) string {
	for strings.HasPrefix(arg, "-") {
		idx := strings.Index(arg, " ")
		if idx < 0 {
			return ""
		}
		arg = strings.TrimLeft(arg[idx+1:], " ")
	}
	return arg
}

// ErrBadAddress is returned for malformed PORT/EPRT arguments.
var ErrBadAddress = errors.New("invalid data address")

// ErrUnsupportedFamily is returned for EPRT address family 2 (IPv6).
// Other unknown families get ErrBadAddress.
var ErrUnsupportedFamily = errors.New("unsupported address family")

// ParseRemoteAddr parses a PORT argument of the form
// "h1,h2,h3,h4,p1,p2" into a TCP address.
func ParseRemoteAddr(param string) (*net.TCPAddr, error) {
	params := strings.Split(param, ",")
	if len(params) != 6 {
		return nil, ErrBadAddress
	}

	for _, p := range params {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return nil, ErrBadAddress
		}
	}

	ip := strings.Join(params[0:4], ".")

	p1, _ := strconv.Atoi(params[4])
	p2, _ := strconv.Atoi(params[5])
	port := p1<<8 | p2
	if port <= 0 || port > 65535 {
		return nil, ErrBadAddress
	}

	addr, err := net.ResolveTCPAddr("tcp", fmt.Sprintf("%s:%d", ip, port))
	if err != nil {
		return nil, ErrBadAddress
	}
	return addr, nil
}

// ParseExtendedAddr parses an EPRT argument "|1|h.h.h.h|port|".
// Only address family 1 (IPv4) is accepted.
func ParseExtendedAddr(param string) (*net.TCPAddr, error) {
	if len(param) < 2 {
		return nil, ErrBadAddress
	}
	delim := param[0:1]
	params := strings.Split(strings.Trim(param, delim), delim)
	if len(params) != 3 {
		return nil, ErrBadAddress
	}
	if params[0] == "2" {
		return nil, ErrUnsupportedFamily
	}
	if params[0] != "1" {
		return nil, ErrBadAddress
	}

	port, err := strconv.Atoi(params[2])
	if err != nil || port <= 0 || port > 65535 {
		return nil, ErrBadAddress
	}

	ip := net.ParseIP(params[1])
	if ip == nil || ip.To4() == nil {
		return nil, ErrBadAddress
	}

	return &net.TCPAddr{IP: ip, Port: port}, nil
}

// RemoteIPString extracts the dotted-quad remote IP of a connection
// address, unwrapping the IPv4-mapped IPv6 form by keeping the last
// dotted quad.
func RemoteIPString(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		host = addr.String()
	}
	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4.String()
		}
	}
	if idx := strings.LastIndex(host, ":"); idx >= 0 && strings.Contains(host, ".") {
		return host[idx+1:]
	}
	return host
}
