// Package headers translates between raw request headers and the identity
// fields a mesh attaches to every call (user id, groups, client type,
// back-office flag and user properties), and back into the "mia headers"
// set that is propagated on outbound calls.
package headers

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Default header names used when no configuration overrides them.
const (
	DefaultUserIDHeaderKey         = "miauserid"
	DefaultUserPropertiesHeaderKey = "miauserproperties"
	DefaultGroupsHeaderKey         = "miausergroups"
	DefaultClientTypeHeaderKey     = "client-type"
	DefaultBackOfficeHeaderKey     = "isbackoffice"
)

// Getter is the read side of a header set.
// Both http.Header and Map satisfy it.
type Getter interface {
	Get(key string) string
}

// Config holds the names of the identity headers.
// It is resolved once at startup and passed down; nothing in this package
// reads process-wide state.
type Config struct {
	UserIDHeaderKey         string
	UserPropertiesHeaderKey string
	GroupsHeaderKey         string
	ClientTypeHeaderKey     string
	BackOfficeHeaderKey     string
}

// DefaultConfig returns a Config with the default header names.
func DefaultConfig() Config {
	return Config{
		UserIDHeaderKey:         DefaultUserIDHeaderKey,
		UserPropertiesHeaderKey: DefaultUserPropertiesHeaderKey,
		GroupsHeaderKey:         DefaultGroupsHeaderKey,
		ClientTypeHeaderKey:     DefaultClientTypeHeaderKey,
		BackOfficeHeaderKey:     DefaultBackOfficeHeaderKey,
	}
}

// Identity is the identity context decoded from a header set.
// It is derived per request and never persisted.
type Identity struct {
	UserID           *string  `json:"userId"`
	UserProperties   any      `json:"userProperties"`
	Groups           []string `json:"groups"`
	ClientType       *string  `json:"clientType"`
	IsFromBackOffice bool     `json:"isFromBackOffice"`
}

// DecodeUserID returns nil for an empty value.
func DecodeUserID(raw string) *string {
	return optional(raw)
}

// DecodeUserProperties parses raw as JSON. Empty values and malformed JSON
// both decode to nil; a bad header never turns into an error.
func DecodeUserProperties(raw string) any {
	if raw == "" {
		return nil
	}
	var props any
	if err := json.Unmarshal([]byte(raw), &props); err != nil {
		return nil
	}
	return props
}

// DecodeGroups splits a comma separated list, dropping empty segments and
// keeping the original order. The result is never nil.
func DecodeGroups(raw string) []string {
	groups := make([]string, 0)
	for _, g := range strings.Split(raw, ",") {
		if g == "" {
			continue
		}
		groups = append(groups, g)
	}
	return groups
}

// DecodeClientType returns nil for an empty value.
func DecodeClientType(raw string) *string {
	return optional(raw)
}

// DecodeBackOffice reports whether raw is a non-empty string.
// Any non-empty value, "0" and "false" included, is true.
func DecodeBackOffice(raw string) bool {
	return raw != ""
}

// Decode builds the Identity carried by h.
func (c Config) Decode(h Getter) Identity {
	return Identity{
		UserID:           DecodeUserID(get(h, c.UserIDHeaderKey)),
		UserProperties:   DecodeUserProperties(get(h, c.UserPropertiesHeaderKey)),
		Groups:           DecodeGroups(get(h, c.GroupsHeaderKey)),
		ClientType:       DecodeClientType(get(h, c.ClientTypeHeaderKey)),
		IsFromBackOffice: DecodeBackOffice(get(h, c.BackOfficeHeaderKey)),
	}
}

// EncodeMiaHeaders renders id as the outbound mia header set. Groups are
// joined with a comma and the back-office flag becomes "1" or "".
func (c Config) EncodeMiaHeaders(id Identity) map[string]string {
	backOffice := ""
	if id.IsFromBackOffice {
		backOffice = "1"
	}
	return map[string]string{
		c.UserIDHeaderKey:     deref(id.UserID),
		c.GroupsHeaderKey:     strings.Join(id.Groups, ","),
		c.ClientTypeHeaderKey: deref(id.ClientType),
		c.BackOfficeHeaderKey: backOffice,
	}
}

// Pick copies the non-empty values of the named headers out of h.
// Keys in the result keep the spelling used in names.
func (c Config) Pick(h Getter, names []string) map[string]string {
	out := make(map[string]string, len(names))
	for _, name := range names {
		if v := get(h, name); v != "" {
			out[name] = v
		}
	}
	return out
}

// Map is a case-insensitive view over a plain string map, as found in the
// JSON envelopes a mesh sends to decorators.
type Map map[string]string

// Get returns the value for key, matching names case-insensitively.
func (m Map) Get(key string) string {
	if v, ok := m[key]; ok {
		return v
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// FromHTTP flattens h into a Map keeping the first value of every header.
// Keys are lower-cased, the way they travel inside mesh envelopes.
func FromHTTP(h http.Header) Map {
	m := make(Map, len(h))
	for k, vs := range h {
		if len(vs) > 0 {
			m[strings.ToLower(k)] = vs[0]
		}
	}
	return m
}

func get(h Getter, key string) string {
	if h == nil || key == "" {
		return ""
	}
	return h.Get(key)
}

func optional(raw string) *string {
	if raw == "" {
		return nil
	}
	return &raw
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
