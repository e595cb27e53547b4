// Package resolve picks the account for a credential request.
//
// Resolution is an ordered list of strategies tried in sequence: the
// single-invocation override, then the directory rules, then the default
// account. Each strategy either names an account or passes, which keeps
// the precedence order testable on its own.
package resolve

import (
	"runtime"
	"sort"
	"strings"

	"path/filepath"

	"github.com/systmms/gitshift/internal/logging"
	"github.com/systmms/gitshift/internal/store"
)

// Strategy is one layer of account resolution.
type Strategy interface {
	// Name identifies the layer in diagnostics ("override", "rule", "default").
	Name() string
	// Account returns the nickname for dir, or ok=false to pass.
	Account(dir string) (string, bool)
}

// Resolver tries strategies in registration order.
type Resolver struct {
	strategies []Strategy
	logger     *logging.Logger
}

// New builds a resolver over the given strategies. Order is precedence.
func New(logger *logging.Logger, strategies ...Strategy) *Resolver {
	return &Resolver{strategies: strategies, logger: logger}
}

// Resolve returns the selected nickname and the name of the strategy that
// produced it. ok=false means no layer matched.
func (r *Resolver) Resolve(dir string) (nickname, source string, ok bool) {
	for _, s := range r.strategies {
		if acct, hit := s.Account(dir); hit {
			r.logger.Debug("account %q selected by %s layer", acct, s.Name())
			return acct, s.Name(), true
		}
	}
	return "", "", false
}

// Override is the ephemeral per-invocation selection. It matches every
// directory when a nickname is present and passes otherwise.
func Override(nickname string) Strategy {
	return overrideStrategy(nickname)
}

type overrideStrategy string

func (o overrideStrategy) Name() string { return "override" }

func (o overrideStrategy) Account(string) (string, bool) {
	if o == "" {
		return "", false
	}
	return string(o), true
}

// Rules resolves by longest matching path prefix. Specificity is counted
// in path segments; identical specificity is broken by the rule's write
// sequence, newest wins.
func Rules(rules []store.Rule) Strategy {
	return &ruleStrategy{rules: rules}
}

type ruleStrategy struct {
	rules []store.Rule
}

func (s *ruleStrategy) Name() string { return "rule" }

func (s *ruleStrategy) Account(dir string) (string, bool) {
	target := Normalize(dir)

	type match struct {
		account  string
		segments int
		seq      uint64
	}
	matches := make([]match, 0, len(s.rules))
	for _, r := range s.rules {
		prefix := Normalize(r.Prefix)
		if !isAncestor(prefix, target) {
			continue
		}
		matches = append(matches, match{
			account:  r.Account,
			segments: segmentCount(prefix),
			seq:      r.Seq,
		})
	}
	if len(matches) == 0 {
		return "", false
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].segments != matches[j].segments {
			return matches[i].segments > matches[j].segments
		}
		return matches[i].seq > matches[j].seq
	})
	return matches[0].account, true
}

// Default matches everything when a default account is configured.
func Default(nickname string) Strategy {
	return defaultStrategy(nickname)
}

type defaultStrategy string

func (d defaultStrategy) Name() string { return "default" }

func (d defaultStrategy) Account(string) (string, bool) {
	if d == "" {
		return "", false
	}
	return string(d), true
}

// caseInsensitiveFS is true on platforms whose default filesystems compare
// paths case-insensitively. Matching must not give different answers for
// equivalent spellings of the same directory there.
var caseInsensitiveFS = runtime.GOOS == "windows" || runtime.GOOS == "darwin"

// Normalize brings a path into canonical matching form: cleaned, forward
// slashes, no trailing separator, case-folded where the filesystem is
// case-insensitive. Equivalent inputs normalize identically so rule
// lookups are stable.
func Normalize(p string) string {
	n := filepath.ToSlash(filepath.Clean(p))
	if len(n) > 1 {
		n = strings.TrimSuffix(n, "/")
	}
	if caseInsensitiveFS {
		n = strings.ToLower(n)
	}
	return n
}

// isAncestor reports whether prefix is dir itself or one of its parents.
// The comparison is segment-aligned: "/a/b" covers "/a/b/c" but never
// "/a/bc".
func isAncestor(prefix, dir string) bool {
	if prefix == dir {
		return true
	}
	if prefix == "/" {
		return strings.HasPrefix(dir, "/")
	}
	return strings.HasPrefix(dir, prefix+"/")
}

func segmentCount(p string) int {
	p = strings.Trim(p, "/")
	if p == "" {
		return 0
	}
	return strings.Count(p, "/") + 1
}
