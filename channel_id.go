package bayeux

import "strings"

// ChannelID is an immutable Bayeux channel path, e.g. "/meta/handshake" or
// "/foo/bar". It is defined as a plain string subtype rather than a struct
// wrapping precomputed parts: ChannelIDs are used as map keys throughout
// this package, and a struct carrying a slice field would not be
// comparable in Go.
type ChannelID string

// Reserved meta channel IDs.
const (
	MetaChannel      ChannelID = "/meta"
	MetaHandshake    ChannelID = "/meta/handshake"
	MetaConnect      ChannelID = "/meta/connect"
	MetaDisconnect   ChannelID = "/meta/disconnect"
	MetaSubscribe    ChannelID = "/meta/subscribe"
	MetaUnsubscribe  ChannelID = "/meta/unsubscribe"
	MetaPublish      ChannelID = "/meta/publish"
	MetaUnsuccessful ChannelID = "/meta/unsuccessful"
	emptyChannelID   ChannelID = ""

	wildSuffix     = "/*"
	wildDeepSuffix = "/**"
	metaPrefix     = "/meta"
)

// IsMeta reports whether the channel is a reserved protocol channel.
func (c ChannelID) IsMeta() bool {
	return c == metaPrefix || strings.HasPrefix(string(c), metaPrefix+"/")
}

// IsWild reports whether the channel is a shallow wildcard, i.e. ends in
// "/*" but not "/**".
func (c ChannelID) IsWild() bool {
	return strings.HasSuffix(string(c), wildSuffix) && !c.IsWildDeep()
}

// IsWildDeep reports whether the channel is a deep wildcard, i.e. ends in
// "/**".
func (c ChannelID) IsWildDeep() bool {
	return strings.HasSuffix(string(c), wildDeepSuffix)
}

// rawParts splits the raw channel string on "/", including the leading
// empty segment produced by the leading slash.
func (c ChannelID) rawParts() []string {
	return strings.Split(string(c), "/")
}

// Parts returns the channel's path segments, excluding the leading empty
// segment implied by the leading "/".
func (c ChannelID) Parts() []string {
	raw := c.rawParts()
	if len(raw) == 0 {
		return raw
	}
	return raw[1:]
}

// IsValid reports whether the channel is a syntactically well-formed
// channel id: it must start with "/", and a trailing "*" must be part of a
// "/*" or "/**" wildcard suffix, not a bare asterisk glued to a segment.
func (c ChannelID) IsValid() bool {
	s := string(c)
	if s == "" || !strings.HasPrefix(s, "/") {
		return false
	}
	if strings.Contains(s, "*") && !c.IsWild() && !c.IsWildDeep() {
		return false
	}
	return true
}

// Wilds enumerates the wildcard ancestors of the channel, in order of
// increasing generality. For "/a/b/c" this yields
// ["/a/b/*", "/a/b/**", "/a/**", "/**"]; for "/" it yields ["/*", "/**"];
// for "" it yields nil.
func (c ChannelID) Wilds() []ChannelID {
	parts := c.rawParts()
	lastIndex := len(parts) - 1
	var wilds []ChannelID
	for index := lastIndex; index > 0; index-- {
		name := strings.Join(parts[:index], "/") + wildSuffix
		if index == lastIndex {
			wilds = append(wilds, ChannelID(name))
		}
		wilds = append(wilds, ChannelID(name+"*"))
	}
	return wilds
}

// MatchString reports whether the given concrete channel path is matched
// by this channel, treating this channel as a possible wildcard pattern.
func (c ChannelID) MatchString(other string) bool {
	return c.Match(ChannelID(other))
}

// Match reports whether other is matched by this channel, treating this
// channel as a possible wildcard pattern. A deep wildcard "/a/**" matches
// any channel with one or more segments under "/a"; a shallow wildcard
// "/a/*" matches only channels with exactly one segment under "/a".
func (c ChannelID) Match(other ChannelID) bool {
	if c == other {
		return true
	}
	cs, os := string(c), string(other)
	switch {
	case strings.HasSuffix(cs, wildDeepSuffix):
		prefix := strings.TrimSuffix(cs, wildDeepSuffix)
		return strings.HasPrefix(os, prefix+"/") && len(os) > len(prefix)+1
	case strings.HasSuffix(cs, wildSuffix):
		prefix := strings.TrimSuffix(cs, wildSuffix)
		if !strings.HasPrefix(os, prefix+"/") {
			return false
		}
		remainder := os[len(prefix)+1:]
		return remainder != "" && !strings.Contains(remainder, "/")
	default:
		return false
	}
}

// ConvertChannelID accepts a string or ChannelID and returns a ChannelID,
// failing for any other type.
func ConvertChannelID(value interface{}) (ChannelID, error) {
	switch v := value.(type) {
	case ChannelID:
		return v, nil
	case string:
		return ChannelID(v), nil
	case nil:
		return emptyChannelID, nil
	default:
		return emptyChannelID, InvalidChannelError{Value: value}
	}
}

// InvalidChannelError is returned by ConvertChannelID when the supplied
// value is neither a string nor a ChannelID.
type InvalidChannelError struct {
	Value interface{}
}

func (e InvalidChannelError) Error() string {
	return "bayeux: channel must be a string or ChannelID"
}
