// Copyright 2014 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package jid

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"
	"golang.org/x/text/secure/precis"
)

// Errors returned when parsing or building a JID.
var (
	ErrEmptyLocalpart    = errors.New("jid: the localpart must be larger than 0 bytes")
	ErrEmptyResourcepart = errors.New("jid: the resourcepart must be larger than 0 bytes")
	ErrEmptyDomainpart   = errors.New("jid: the domainpart must be larger than 0 bytes")
	ErrLongPart          = errors.New("jid: each part must be smaller than 1024 bytes")
	ErrForbiddenLocal    = errors.New("jid: localpart contains forbidden characters")
	ErrInvalidUTF8       = errors.New("jid: JID contains invalid UTF-8")
	ErrInvalidIPv6       = errors.New("jid: domainpart is not a valid IPv6 address")
)

// JID represents an XMPP address (Jabber ID) comprising a localpart,
// domainpart, and resourcepart.
// The parts are stored in their prepared and enforced form, so two JIDs that
// refer to the same entity compare equal with ==.
//
// The zero value is the empty JID.
type JID struct {
	local    string
	domain   string
	resource string
}

// Parse constructs a new JID from the given string representation.
func Parse(s string) (JID, error) {
	localpart, domainpart, resourcepart, err := SplitString(s)
	if err != nil {
		return JID{}, err
	}
	return New(localpart, domainpart, resourcepart)
}

// MustParse is like Parse but panics if the JID cannot be parsed.
// It simplifies safe initialization of JIDs from known-good constant strings.
func MustParse(s string) JID {
	j, err := Parse(s)
	if err != nil {
		if strconv.CanBackquote(s) {
			s = "`" + s + "`"
		} else {
			s = strconv.Quote(s)
		}
		panic(`jid: Parse(` + s + `): ` + err.Error())
	}
	return j
}

// New constructs a new JID from the given localpart, domainpart, and
// resourcepart.
// The localpart is enforced with the PRECIS UsernameCaseMapped profile, the
// domainpart is converted to its lower case Unicode form, and the resourcepart
// is enforced with the OpaqueString profile.
func New(localpart, domainpart, resourcepart string) (JID, error) {
	if !utf8.ValidString(localpart) || !utf8.ValidString(domainpart) || !utf8.ValidString(resourcepart) {
		return JID{}, ErrInvalidUTF8
	}

	var j JID
	var err error
	if domainpart == "" {
		return j, ErrEmptyDomainpart
	}
	if err = checkIP6String(domainpart); err != nil {
		return j, err
	}
	if !strings.HasPrefix(domainpart, "[") {
		domainpart, err = idna.Lookup.ToUnicode(domainpart)
		if err != nil {
			return j, err
		}
		domainpart = strings.ToLower(domainpart)
	}
	j.domain = domainpart

	if localpart != "" {
		j.local, err = precis.UsernameCaseMapped.String(localpart)
		if err != nil {
			return JID{}, err
		}
		if strings.ContainsAny(j.local, `"&'/:<>@`) {
			return JID{}, ErrForbiddenLocal
		}
	}
	if resourcepart != "" {
		j.resource, err = precis.OpaqueString.String(resourcepart)
		if err != nil {
			return JID{}, err
		}
	}

	if len(j.local) > 1023 || len(j.domain) > 1023 || len(j.resource) > 1023 {
		return JID{}, ErrLongPart
	}
	return j, nil
}

// SplitString splits out the localpart, domainpart, and resourcepart from a
// string representation of a JID.
// The parts are not guaranteed to be valid, and each part must be 1023 bytes
// or less.
func SplitString(s string) (localpart, domainpart, resourcepart string, err error) {
	// RFC 7622 §3.1.  Fundamentals:
	//
	//    Implementation Note: When dividing a JID into its component parts,
	//    an implementation needs to match the separator characters '@' and
	//    '/' before applying any transformation algorithms, which might
	//    decompose certain Unicode code points to the separator characters.
	//
	// so let's do that now. First we'll parse the domainpart using the rules
	// defined in §3.2:
	//
	//    The domainpart of a JID is the portion that remains once the
	//    following parsing steps are taken:
	//
	//    1.  Remove any portion from the first '/' character to the end of the
	//        string (if there is a '/' character present).
	if before, after, found := strings.Cut(s, "/"); found {
		if after == "" {
			return "", "", "", ErrEmptyResourcepart
		}
		resourcepart = after
		s = before
	}

	//    2.  Remove any portion from the beginning of the string to the first
	//        '@' character (if there is an '@' character present).
	switch sep := strings.Index(s, "@"); sep {
	case -1:
		domainpart = s
	case 0:
		return "", "", "", ErrEmptyLocalpart
	default:
		localpart = s[:sep]
		domainpart = s[sep+1:]
	}

	// If the domainpart includes a final character considered to be a label
	// separator (dot) by [RFC1034], this character MUST be stripped from the
	// domainpart before the JID of which it is a part is used for the purpose
	// of routing an XML stanza, comparing against another JID, or constructing
	// an XMPP URI or IRI [RFC5122].
	domainpart = strings.TrimSuffix(domainpart, ".")
	return localpart, domainpart, resourcepart, nil
}

func checkIP6String(domainpart string) error {
	if l := len(domainpart); l > 2 && strings.HasPrefix(domainpart, "[") &&
		strings.HasSuffix(domainpart, "]") {
		if ip := net.ParseIP(domainpart[1 : l-1]); ip == nil || ip.To4() != nil {
			return ErrInvalidIPv6
		}
	}
	return nil
}

// Localpart gets the localpart of a JID (eg "username").
func (j JID) Localpart() string {
	return j.local
}

// Domainpart gets the domainpart of a JID (eg. "example.net").
func (j JID) Domainpart() string {
	return j.domain
}

// Resourcepart gets the resourcepart of a JID (eg. "someclient-abc123").
func (j JID) Resourcepart() string {
	return j.resource
}

// ASCIIDomain returns the domainpart converted to its ASCII compatible
// encoding (A-labels), suitable for DNS lookups and TLS server names.
func (j JID) ASCIIDomain() (string, error) {
	if strings.HasPrefix(j.domain, "[") {
		return strings.Trim(j.domain, "[]"), nil
	}
	return idna.Lookup.ToASCII(j.domain)
}

// Bare returns a copy of the JID without a resourcepart.
// This is sometimes called a "bare" JID.
func (j JID) Bare() JID {
	j.resource = ""
	return j
}

// Domain returns a copy of the JID without a resourcepart or localpart.
func (j JID) Domain() JID {
	return JID{domain: j.domain}
}

// WithResource returns a copy of the JID with a new resourcepart.
// An empty resourcepart removes the existing one.
func (j JID) WithResource(resourcepart string) (JID, error) {
	if resourcepart == "" {
		return j.Bare(), nil
	}
	if !utf8.ValidString(resourcepart) {
		return JID{}, ErrInvalidUTF8
	}
	rp, err := precis.OpaqueString.String(resourcepart)
	if err != nil {
		return JID{}, err
	}
	j.resource = rp
	return j, nil
}

// IsZero reports whether j is the empty JID.
func (j JID) IsZero() bool {
	return j == JID{}
}

// Equal performs an octet-for-octet comparison with the given JID.
func (j JID) Equal(j2 JID) bool {
	return j == j2
}

// String converts a JID to its string representation.
func (j JID) String() string {
	s := j.domain
	if j.local != "" {
		s = j.local + "@" + s
	}
	if j.resource != "" {
		s = s + "/" + j.resource
	}
	return s
}

// Network satisfies the net.Addr interface by returning the name of the
// network ("xmpp").
func (JID) Network() string {
	return "xmpp"
}
