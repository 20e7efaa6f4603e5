// Package smburl parses and formats smb:// URLs:
//
//	smb://[[[domain;]user[:password]@]server[:port][/share[/path[/file]]]]
//
// "smb://" alone denotes the workgroup list, "smb://server" the share list of
// server. Backslashes are never path separators.
package smburl

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/marmos91/smbc/pkg/auth"
	"github.com/marmos91/smbc/pkg/smberr"
)

// Scheme is the only accepted URL scheme.
const Scheme = "smb"

// DefaultPort is the SMB over TCP port.
const DefaultPort = 445

// Kind classifies what a URL points at.
type Kind int

const (
	KindWorkgroups Kind = iota // smb://
	KindShares                 // smb://server
	KindShare                  // smb://server/share
	KindPath                   // smb://server/share/path...
)

func (k Kind) String() string {
	switch k {
	case KindWorkgroups:
		return "workgroups"
	case KindShares:
		return "shares"
	case KindShare:
		return "share"
	case KindPath:
		return "path"
	default:
		return "unknown"
	}
}

// URL is a parsed smb:// URL.
type URL struct {
	Domain   string
	User     string
	Password string
	HasUser  bool // userinfo present, possibly with an empty user
	HasPass  bool
	Server   string
	Port     int // 0 means DefaultPort
	Share    string
	Path     string // slash separated, no leading slash
}

// Parse parses raw into a URL.
func Parse(raw string) (*URL, error) {
	rest, ok := cutScheme(raw)
	if !ok {
		return nil, smberr.Invalid("url %q: scheme must be %s://", Redact(raw), Scheme)
	}

	u := &URL{}
	authority, path, _ := strings.Cut(rest, "/")

	if at := strings.LastIndex(authority, "@"); at >= 0 {
		if err := u.parseUserinfo(authority[:at]); err != nil {
			return nil, err
		}
		authority = authority[at+1:]
	}

	if err := u.parseHost(authority); err != nil {
		return nil, err
	}
	if u.Server == "" && (u.HasUser || path != "") {
		return nil, smberr.Invalid("url %q: missing server", Redact(raw))
	}

	segs, err := splitPath(path)
	if err != nil {
		return nil, smberr.Invalid("url %q: %v", Redact(raw), err)
	}
	if len(segs) > 0 {
		u.Share = segs[0]
		u.Path = strings.Join(segs[1:], "/")
	}
	return u, nil
}

// MustParse is Parse that panics, for constants in tests and examples.
func MustParse(raw string) *URL {
	u, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}

func cutScheme(raw string) (string, bool) {
	i := strings.Index(raw, "://")
	if i < 0 || !strings.EqualFold(raw[:i], Scheme) {
		return "", false
	}
	return raw[i+3:], true
}

func (u *URL) parseUserinfo(s string) error {
	u.HasUser = true
	if dom, rest, ok := strings.Cut(s, ";"); ok {
		d, err := url.PathUnescape(dom)
		if err != nil {
			return smberr.Invalid("bad domain encoding: %v", err)
		}
		u.Domain = d
		s = rest
	}
	user, pass, hasPass := strings.Cut(s, ":")
	var err error
	if u.User, err = url.PathUnescape(user); err != nil {
		return smberr.Invalid("bad user encoding: %v", err)
	}
	if hasPass {
		u.HasPass = true
		if u.Password, err = url.PathUnescape(pass); err != nil {
			return smberr.Invalid("bad password encoding: %v", err)
		}
	}
	return nil
}

func (u *URL) parseHost(s string) error {
	if s == "" {
		return nil
	}
	host, port := s, ""
	if strings.HasPrefix(s, "[") {
		end := strings.Index(s, "]")
		if end < 0 {
			return smberr.Invalid("unterminated IPv6 literal in %q", s)
		}
		host = s[1:end]
		if tail := s[end+1:]; tail != "" {
			if !strings.HasPrefix(tail, ":") {
				return smberr.Invalid("unexpected %q after IPv6 literal", tail)
			}
			port = tail[1:]
		}
	} else if h, p, ok := strings.Cut(s, ":"); ok {
		host, port = h, p
	}

	h, err := url.PathUnescape(host)
	if err != nil {
		return smberr.Invalid("bad server encoding: %v", err)
	}
	u.Server = h

	if port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n <= 0 || n > 65535 {
			return smberr.Invalid("invalid port %q", port)
		}
		u.Port = n
	}
	return nil
}

func splitPath(p string) ([]string, error) {
	var segs []string
	for _, s := range strings.Split(p, "/") {
		if s == "" {
			continue
		}
		d, err := url.PathUnescape(s)
		if err != nil {
			return nil, err
		}
		segs = append(segs, d)
	}
	return segs, nil
}

// Kind reports what u points at.
func (u *URL) Kind() Kind {
	switch {
	case u.Server == "":
		return KindWorkgroups
	case u.Share == "":
		return KindShares
	case u.Path == "":
		return KindShare
	default:
		return KindPath
	}
}

// Credentials returns the credential fields embedded in u. Fields absent
// from the URL stay nil so they do not override resolver output.
func (u *URL) Credentials() auth.Override {
	var o auth.Override
	if u.Domain != "" {
		o.Workgroup = auth.String(u.Domain)
	}
	if u.HasUser && u.User != "" {
		o.Username = auth.String(u.User)
	}
	if u.HasPass {
		o.Password = auth.String(u.Password)
	}
	return o
}

// Addr returns host:port for dialing.
func (u *URL) Addr() string {
	port := u.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(u.Server, strconv.Itoa(port))
}

// Name returns the last path element, or the share or server name for
// shorter URLs.
func (u *URL) Name() string {
	switch u.Kind() {
	case KindPath:
		return u.Path[strings.LastIndex(u.Path, "/")+1:]
	case KindShare:
		return u.Share
	default:
		return u.Server
	}
}

// Join returns a copy of u with elem appended to the path.
func (u *URL) Join(elem ...string) *URL {
	c := *u
	segs := make([]string, 0, len(elem)+2)
	for _, s := range append([]string{c.Share, c.Path}, elem...) {
		if s = strings.Trim(s, "/"); s != "" {
			segs = append(segs, s)
		}
	}
	joined := strings.Join(segs, "/")
	c.Share, c.Path, _ = strings.Cut(joined, "/")
	return &c
}

// Parent returns the containing directory, share or server of u.
func (u *URL) Parent() *URL {
	c := *u
	switch u.Kind() {
	case KindPath:
		if i := strings.LastIndex(c.Path, "/"); i >= 0 {
			c.Path = c.Path[:i]
		} else {
			c.Path = ""
		}
	case KindShare:
		c.Share = ""
	default:
		c.Server, c.Port = "", 0
		c.HasUser, c.HasPass, c.User, c.Password, c.Domain = false, false, "", "", ""
	}
	return &c
}

// WithoutCredentials returns a copy of u with userinfo removed.
func (u *URL) WithoutCredentials() *URL {
	c := *u
	c.Domain, c.User, c.Password = "", "", ""
	c.HasUser, c.HasPass = false, false
	return &c
}

// String formats u, percent-encoding reserved characters.
func (u *URL) String() string {
	var b strings.Builder
	b.WriteString(Scheme)
	b.WriteString("://")
	if u.Server == "" {
		return b.String()
	}
	if u.HasUser {
		if u.Domain != "" {
			b.WriteString(escape(u.Domain))
			b.WriteByte(';')
		}
		b.WriteString(escape(u.User))
		if u.HasPass {
			b.WriteByte(':')
			b.WriteString(escape(u.Password))
		}
		b.WriteByte('@')
	}
	if strings.Contains(u.Server, ":") {
		b.WriteString("[" + u.Server + "]")
	} else {
		b.WriteString(escape(u.Server))
	}
	if u.Port != 0 {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(u.Port))
	}
	if u.Share != "" {
		b.WriteByte('/')
		b.WriteString(escape(u.Share))
	}
	if u.Path != "" {
		for _, s := range strings.Split(u.Path, "/") {
			b.WriteByte('/')
			b.WriteString(escape(s))
		}
	}
	return b.String()
}

// Redacted formats u with the password masked, for logs and errors.
func (u *URL) Redacted() string {
	if !u.HasPass {
		return u.String()
	}
	c := *u
	c.Password = "xxxxx"
	return c.String()
}

// Redact masks the password of a raw URL string. Unparseable input is
// returned with everything before the last '@' removed.
func Redact(raw string) string {
	rest, ok := cutScheme(raw)
	if !ok {
		return raw
	}
	authority, tail, hasTail := strings.Cut(rest, "/")
	at := strings.LastIndex(authority, "@")
	if at < 0 {
		return raw
	}
	info := authority[:at]
	if i := strings.Index(info, ":"); i >= 0 {
		info = info[:i] + ":xxxxx"
	}
	out := Scheme + "://" + info + authority[at:]
	if hasTail {
		out += "/" + tail
	}
	return out
}

// escape percent-encodes s for use in a single URL element.
// Spaces stay readable as %20 and ';', ':', '@' and '/' are always encoded.
func escape(s string) string {
	e := url.PathEscape(s)
	r := strings.NewReplacer(";", "%3B", ":", "%3A", "@", "%40")
	return r.Replace(e)
}
