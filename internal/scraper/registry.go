package scraper

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// ErrHostMismatch reports a parser invoked on a URL it does not own.
var ErrHostMismatch = errors.New("parser/hostname mismatch")

// HostMismatchError is the panic value raised by the anti-contamination guard.
type HostMismatchError struct {
	Kind Kind
	URL  string
}

func (e *HostMismatchError) Error() string {
	return fmt.Sprintf("%s: %s parser invoked on %s", ErrHostMismatch, e.Kind, e.URL)
}

func (e *HostMismatchError) Unwrap() error { return ErrHostMismatch }

// hostKinds is the complete hostname table. Nothing else selects a parser.
var hostKinds = map[string]Kind{
	"marktplaats.nl": KindMarktplaats,
	"leboncoin.fr":   KindLeboncoin,
	"bilbasen.dk":    KindBilbasen,
	"gaspedaal.nl":   KindGaspedaal,
}

var (
	mu       sync.RWMutex
	registry = map[Kind]Parser{}
)

// Register makes a parser available. Site packages call it from init.
func Register(p Parser) {
	mu.Lock()
	defer mu.Unlock()
	registry[p.Kind()] = p
}

// Get returns the registered parser for kind.
func Get(kind Kind) (Parser, bool) {
	mu.RLock()
	defer mu.RUnlock()
	p, ok := registry[kind]
	return p, ok
}

// Hostname returns the lowercased hostname of rawURL, or "" if it has none.
func Hostname(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// SelectParserByHostname maps a URL to its parser kind by exact hostname
// match, with or without a leading "www.". Anything else is generic.
func SelectParserByHostname(rawURL string) Kind {
	host := strings.TrimPrefix(Hostname(rawURL), "www.")
	if kind, ok := hostKinds[host]; ok {
		return kind
	}
	return KindGeneric
}

// CheckHost returns a *HostMismatchError when kind is not the parser the
// hostname table selects for rawURL. Generic accepts any URL that does not
// belong to a known marketplace.
func CheckHost(kind Kind, rawURL string) error {
	if SelectParserByHostname(rawURL) != kind {
		return &HostMismatchError{Kind: kind, URL: rawURL}
	}
	return nil
}

// outboundKinds may emit listing URLs on other hosts. Gaspedaal aggregates
// dealer stock and links straight to the dealer or source marketplace.
var outboundKinds = map[Kind]bool{
	KindGeneric:   true,
	KindGaspedaal: true,
}

// Parse runs the registered parser for kind after validating the hostname.
// A mismatch is a programming error and panics. Listings a dedicated parser
// emits on a foreign host are dropped and counted in OffHost.
func Parse(kind Kind, html, sourceURL string) ParseResult {
	if err := CheckHost(kind, sourceURL); err != nil {
		panic(err)
	}
	p, ok := Get(kind)
	if !ok {
		panic(fmt.Sprintf("no parser registered for %s", kind))
	}
	res := p.Parse(html, sourceURL)
	if outboundKinds[kind] {
		return res
	}
	return dropOffHost(kind, res)
}

func dropOffHost(kind Kind, res ParseResult) ParseResult {
	kept := res.Listings[:0:0]
	for _, l := range res.Listings {
		if SelectParserByHostname(l.URL) != kind {
			res.OffHost++
			continue
		}
		kept = append(kept, l)
	}
	if kept == nil {
		kept = []Listing{}
	}
	res.Listings = kept
	return res
}
