package domain

import (
	"fmt"
	"slices"
	"strings"
)

// BlockEntry is a user-supplied pattern: a domain, a substring, or a glob
// using '*'. Entries are stored trimmed and, unless case-sensitive mode is
// on, lowercased.
type BlockEntry string

// NewBlockEntry normalizes raw into a BlockEntry. Whitespace-only input is
// rejected with ErrMalformedInput.
func NewBlockEntry(raw string, caseSensitive bool) (BlockEntry, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: entry must not be empty", ErrMalformedInput)
	}
	if !caseSensitive {
		s = strings.ToLower(s)
	}
	return BlockEntry(s), nil
}

// IsWildcard reports whether the entry contains a '*' glob.
func (e BlockEntry) IsWildcard() bool { return strings.Contains(string(e), "*") }

func (e BlockEntry) String() string { return string(e) }

// BlockList is the ordered user list. Order is insertion order; it does not
// affect matching.
type BlockList []BlockEntry

// Contains reports whether e is on the list (exact comparison).
func (l BlockList) Contains(e BlockEntry) bool {
	return slices.Contains(l, e)
}

// With returns a copy of l with e appended, or ErrDuplicateEntry.
func (l BlockList) With(e BlockEntry) (BlockList, error) {
	if l.Contains(e) {
		return l, fmt.Errorf("%w: %s", ErrDuplicateEntry, e)
	}
	out := make(BlockList, 0, len(l)+1)
	out = append(out, l...)
	return append(out, e), nil
}

// Without returns a copy of l with the first occurrence of e removed, or
// ErrMissingEntry.
func (l BlockList) Without(e BlockEntry) (BlockList, error) {
	i := slices.Index(l, e)
	if i < 0 {
		return l, fmt.Errorf("%w: %s", ErrMissingEntry, e)
	}
	out := make(BlockList, 0, len(l)-1)
	out = append(out, l[:i]...)
	return append(out, l[i+1:]...), nil
}

// Strings returns the entries as plain strings, never nil.
func (l BlockList) Strings() []string {
	out := make([]string, len(l))
	for i, e := range l {
		out[i] = string(e)
	}
	return out
}

// BlockListFromStrings builds a list from raw values, skipping blanks and
// duplicates while keeping first-seen order.
func BlockListFromStrings(raw []string, caseSensitive bool) BlockList {
	out := make(BlockList, 0, len(raw))
	for _, r := range raw {
		e, err := NewBlockEntry(r, caseSensitive)
		if err != nil || out.Contains(e) {
			continue
		}
		out = append(out, e)
	}
	return out
}
