package srcinfo

import (
	"bufio"
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// scalarKeys are attributes with overwrite-on-reassignment semantics:
// the last occurrence within a section wins.
var scalarKeys = map[string]bool{
	"pkgdesc": true,
	"pkgver":  true,
	"pkgrel":  true,
	"epoch":   true,
	"url":     true,
}

// multiKeys are attributes collected into an ordered list, each of
// which may additionally carry an arch suffix ("depends_x86_64").
// Only the first eight are surfaced on PackageRecord; the rest are
// recognized so that well-formed files with them never trip the
// unknown-key warning counter.
var multiKeys = map[string]bool{
	"depends":      true,
	"makedepends":  true,
	"optdepends":   true,
	"checkdepends": true,
	"provides":     true,
	"conflicts":    true,
	"replaces":     true,
	"groups":       true,

	"license":      true,
	"arch":         true,
	"source":       true,
	"validpgpkeys": true,
	"noextract":    true,
	"options":      true,
	"backup":       true,
	"md5sums":      true,
	"sha1sums":     true,
	"sha256sums":   true,
	"sha512sums":   true,
	"b2sums":       true,
}

// section holds one pkgbase or pkgname block's attributes while it is
// being built.
type section struct {
	pkgdesc, pkgver, pkgrel, epoch, url string
	multi                               map[string][]string
	// touched marks keys that have already been (re)assigned within
	// this section, so the first write after inheriting from the base
	// section replaces the inherited list instead of extending it.
	touched map[string]bool
}

func newSection() *section {
	return &section{multi: make(map[string][]string), touched: make(map[string]bool)}
}

// clone deep-copies s as the starting point for a new pkgname section,
// per the rule that a package section's attributes begin as a copy of
// the current pkgbase section's attributes.
func (s *section) clone() *section {
	c := newSection()
	c.pkgdesc, c.pkgver, c.pkgrel, c.epoch, c.url = s.pkgdesc, s.pkgver, s.pkgrel, s.epoch, s.url
	for k, v := range s.multi {
		cp := make([]string, len(v))
		copy(cp, v)
		c.multi[k] = cp
	}
	return c
}

func isMultiKey(key string) bool {
	if multiKeys[key] {
		return true
	}
	for base := range multiKeys {
		prefix := base + "_"
		if strings.HasPrefix(key, prefix) && len(key) > len(prefix) {
			return true
		}
	}
	return false
}

func (s *section) apply(key, value string) (warned bool) {
	switch key {
	case "pkgdesc":
		s.pkgdesc = value
		return false
	case "pkgver":
		s.pkgver = value
		return false
	case "pkgrel":
		s.pkgrel = value
		return false
	case "epoch":
		s.epoch = value
		return false
	case "url":
		s.url = value
		return false
	}
	if isMultiKey(key) {
		if !s.touched[key] {
			s.multi[key] = nil
			s.touched[key] = true
		}
		s.multi[key] = append(s.multi[key], value)
		return false
	}
	return true
}

// flatten returns the ordered values of a multi-value attribute,
// arch-agnostic entries first, followed by each arch-suffixed
// variant's entries in lexicographic order of arch name.
func (s *section) flatten(key string) []string {
	out := append([]string(nil), s.multi[key]...)
	prefix := key + "_"
	var archs []string
	for k := range s.multi {
		if strings.HasPrefix(k, prefix) {
			archs = append(archs, strings.TrimPrefix(k, prefix))
		}
	}
	sort.Strings(archs)
	for _, arch := range archs {
		out = append(out, s.multi[prefix+arch]...)
	}
	return out
}

func (s *section) version() string {
	if s.epoch != "" {
		return s.epoch + ":" + s.pkgver + "-" + s.pkgrel
	}
	return s.pkgver + "-" + s.pkgrel
}

func (s *section) record(branch, pkgName string) PackageRecord {
	return PackageRecord{
		Branch:  branch,
		PkgName: pkgName,
		PkgDesc: s.pkgdesc,
		Version: s.version(),
		URL:     s.url,

		Depends:      s.flatten("depends"),
		MakeDepends:  s.flatten("makedepends"),
		OptDepends:   s.flatten("optdepends"),
		CheckDepends: s.flatten("checkdepends"),
		Provides:     s.flatten("provides"),
		Conflicts:    s.flatten("conflicts"),
		Replaces:     s.flatten("replaces"),
		Groups:       s.flatten("groups"),
	}
}

// splitKV splits a trimmed "key = value" or "key=value" line. ok is
// false if there is no '=' or the key is empty.
func splitKV(line string) (key, value string, ok bool) {
	i := strings.IndexByte(line, '=')
	if i < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:i])
	value = strings.TrimSpace(line[i+1:])
	if key == "" {
		return "", "", false
	}
	return key, value, true
}

// Parse parses a .SRCINFO file's contents into package records, one
// per pkgname section. branch identifies the repository branch the
// file was fetched from and is copied verbatim into every record.
//
// Malformed lines (no '=', an empty value, an unrecognized key, or an
// indented attribute line before any pkgbase or pkgname line) are
// tolerated: they are skipped and counted in Result.Warnings rather
// than failing the parse. A second pkgbase line is a hard error, since
// a file is only ever supposed to describe one package base.
//
// bufio.Scanner's default line split strips a single trailing '\r'
// from each line (CRLF), leaving any embedded '\r' within a value
// untouched.
func Parse(branch string, data []byte) (Result, error) {
	var result Result
	base := newSection()
	var current *section
	var currentName string
	basePkgBaseSeen := false

	finish := func() {
		if current != nil {
			result.Packages = append(result.Packages, current.record(branch, currentName))
		}
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		raw := sc.Text()
		line := strings.TrimSpace(raw)
		indented := strings.HasPrefix(raw, "\t") || strings.HasPrefix(raw, " ")
		if line == "" {
			continue
		}
		key, value, ok := splitKV(line)
		if !ok || value == "" {
			result.Warnings++
			continue
		}
		switch key {
		case "pkgbase":
			if basePkgBaseSeen {
				return result, fmt.Errorf("srcinfo: duplicate pkgbase line")
			}
			basePkgBaseSeen = true
			continue
		case "pkgname":
			finish()
			current = base.clone()
			currentName = value
			continue
		}
		target := current
		if target == nil {
			if indented && !basePkgBaseSeen {
				result.Warnings++
				continue
			}
			target = base
		}
		if warned := target.apply(key, value); warned {
			result.Warnings++
		}
	}
	finish()
	if err := sc.Err(); err != nil {
		return result, fmt.Errorf("srcinfo: %w", err)
	}
	return result, nil
}
