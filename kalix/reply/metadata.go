package reply

import (
	"strings"

	"github.com/lightbend/kalix-go-sdk/kalix/protocol"
)

// metadataEntry is one key/value pair; at most one of the value fields is set.
type metadataEntry struct {
	key         string
	stringValue string
	bytesValue  []byte
	isBytes     bool
}

// Metadata is a case-insensitive multimap of string keys to string or bytes
// values, carried on commands, replies, forwards and effects.
type Metadata struct {
	entries []metadataEntry
}

// NewMetadata creates empty metadata.
func NewMetadata() *Metadata {
	return &Metadata{}
}

// MetadataFromProtocol converts the wire form.
func MetadataFromProtocol(pm *protocol.Metadata) *Metadata {
	md := &Metadata{}
	if pm == nil {
		return md
	}
	for _, e := range pm.Entries {
		if e.BytesValue != nil {
			md.AddBytes(e.Key, e.BytesValue)
		} else {
			md.Add(e.Key, e.StringValue)
		}
	}
	return md
}

// ToProtocol converts to the wire form; nil when empty.
func (m *Metadata) ToProtocol() *protocol.Metadata {
	if m == nil || len(m.entries) == 0 {
		return nil
	}
	pm := &protocol.Metadata{}
	for _, e := range m.entries {
		pe := &protocol.MetadataEntry{Key: e.key}
		if e.isBytes {
			pe.BytesValue = e.bytesValue
		} else {
			pe.StringValue = e.stringValue
		}
		pm.Entries = append(pm.Entries, pe)
	}
	return pm
}

// Len returns the number of entries.
func (m *Metadata) Len() int {
	return len(m.entries)
}

// Add appends a string value for a key, keeping existing values.
func (m *Metadata) Add(key, value string) *Metadata {
	m.entries = append(m.entries, metadataEntry{key: key, stringValue: value})
	return m
}

// AddBytes appends a bytes value for a key, keeping existing values.
func (m *Metadata) AddBytes(key string, value []byte) *Metadata {
	m.entries = append(m.entries, metadataEntry{key: key, bytesValue: value, isBytes: true})
	return m
}

// Set replaces every value of a key with one string value.
func (m *Metadata) Set(key, value string) *Metadata {
	m.Delete(key)
	return m.Add(key, value)
}

// Get returns the first string value for a key, matched case-insensitively.
func (m *Metadata) Get(key string) (string, bool) {
	for _, e := range m.entries {
		if strings.EqualFold(e.key, key) && !e.isBytes {
			return e.stringValue, true
		}
	}
	return "", false
}

// GetBytes returns the first bytes value for a key, matched case-insensitively.
func (m *Metadata) GetBytes(key string) ([]byte, bool) {
	for _, e := range m.entries {
		if strings.EqualFold(e.key, key) && e.isBytes {
			return e.bytesValue, true
		}
	}
	return nil, false
}

// GetAll returns every string value for a key, matched case-insensitively.
func (m *Metadata) GetAll(key string) []string {
	var out []string
	for _, e := range m.entries {
		if strings.EqualFold(e.key, key) && !e.isBytes {
			out = append(out, e.stringValue)
		}
	}
	return out
}

// Has reports whether a key is present, matched case-insensitively.
func (m *Metadata) Has(key string) bool {
	for _, e := range m.entries {
		if strings.EqualFold(e.key, key) {
			return true
		}
	}
	return false
}

// Delete removes every value of a key, matched case-insensitively.
func (m *Metadata) Delete(key string) *Metadata {
	kept := m.entries[:0]
	for _, e := range m.entries {
		if !strings.EqualFold(e.key, key) {
			kept = append(kept, e)
		}
	}
	m.entries = kept
	return m
}

// Keys returns the keys in entry order, with duplicates.
func (m *Metadata) Keys() []string {
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.key)
	}
	return out
}

// Clone returns a deep copy.
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return nil
	}
	clone := &Metadata{entries: make([]metadataEntry, len(m.entries))}
	copy(clone.entries, m.entries)
	for i := range clone.entries {
		if clone.entries[i].isBytes {
			clone.entries[i].bytesValue = append([]byte(nil), clone.entries[i].bytesValue...)
		}
	}
	return clone
}
