package scanner

import (
	"log/slog"

	"github.com/pbaille/localrename/internal/dom"
	"github.com/pbaille/localrename/internal/resolver"
	"github.com/pbaille/localrename/internal/rewrite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/net/html"
)

var (
	scanTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "localrename_scan_total",
		Help: "Tree scans by kind",
	}, []string{"kind"})

	resolveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "localrename_resolve_total",
		Help: "Identifier resolutions by winning strategy (none when the chain is exhausted)",
	}, []string{"strategy"})

	labelChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "localrename_label_changes_total",
		Help: "Displayed label changes by result",
	}, []string{"result"})
)

// AliasLookup is the read-only view of the alias mapping a scan needs
type AliasLookup interface {
	Get(id string) (string, bool)
}

// Report summarizes one scan
type Report struct {
	Examined int
	Resolved int
	Renamed  int
	Restored int
}

func (r *Report) add(o Report) {
	r.Examined += o.Examined
	r.Resolved += o.Resolved
	r.Renamed += o.Renamed
	r.Restored += o.Restored
}

// Scanner applies aliases to rendered items
type Scanner struct {
	aliases   AliasLookup
	resolver  *resolver.Resolver
	rewriter  *rewrite.Rewriter
	item      dom.Matcher
	itemAttr  string
	selectors []dom.Matcher
	logger    *slog.Logger
}

// Options configures a Scanner
type Options struct {
	// ItemAttribute is the node-level identifier attribute the subtree fast
	// path looks for.
	ItemAttribute string

	// Selectors are the broad item-container patterns of a whole scan.
	Selectors []dom.Matcher

	Logger *slog.Logger
}

// New creates a Scanner
func New(aliases AliasLookup, res *resolver.Resolver, rw *rewrite.Rewriter, opts Options) (*Scanner, error) {
	item, err := dom.Compile("[" + opts.ItemAttribute + "]")
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		aliases:   aliases,
		resolver:  res,
		rewriter:  rw,
		item:      item,
		itemAttr:  opts.ItemAttribute,
		selectors: opts.Selectors,
		logger:    logger,
	}, nil
}

// Rewriter returns the rewriter holding the original-label cache
func (s *Scanner) Rewriter() *rewrite.Rewriter {
	return s.rewriter
}

// ScanSubtree handles a freshly inserted subtree: every element carrying the
// item attribute (root included) is renamed or restored.
func (s *Scanner) ScanSubtree(root *html.Node) Report {
	scanTotal.WithLabelValues("subtree").Inc()

	var rep Report
	if root == nil || root.Type != html.ElementNode {
		return rep
	}

	items := dom.QueryAll(root, s.item)
	if dom.Matches(root, s.item) {
		items = append([]*html.Node{root}, items...)
	}

	for _, el := range items {
		rep.Examined++
		id := dom.Attr(el, s.itemAttr)
		if id == "" {
			continue
		}
		rep.Resolved++
		if label, ok := s.aliases.Get(id); ok && label != "" {
			if _, changed := s.rewriter.Apply(el, label); changed {
				rep.Renamed++
			}
		} else if s.rewriter.Restore(el) {
			rep.Restored++
		}
	}

	s.record(rep)
	return rep
}

// ScanWhole runs every selector over the tree under root, resolving each
// match through the full fallback chain. Text elements that were renamed
// earlier but have no alias any more are restored afterwards.
func (s *Scanner) ScanWhole(root *html.Node) Report {
	scanTotal.WithLabelValues("whole").Inc()

	var rep Report
	claimed := make(map[*html.Node]bool)
	for i, m := range s.selectors {
		part := s.scanSelector(root, m, claimed)
		s.logger.Debug("selector scanned", "selector", i, "examined", part.Examined, "renamed", part.Renamed)
		rep.add(part)
	}
	rep.Restored += s.rewriter.RestoreExcept(root, claimed)

	s.record(rep)
	if rep.Renamed == 0 && rep.Restored == 0 {
		s.logger.Debug("whole scan changed nothing", "examined", rep.Examined, "resolved", rep.Resolved)
	}
	return rep
}

func (s *Scanner) scanSelector(root *html.Node, m dom.Matcher, claimed map[*html.Node]bool) Report {
	var rep Report
	for _, el := range dom.QueryAll(root, m) {
		rep.Examined++
		id, strategy, ok := s.resolver.ResolveWithStrategy(el)
		if !ok {
			resolveTotal.WithLabelValues("none").Inc()
			continue
		}
		resolveTotal.WithLabelValues(strategy).Inc()
		rep.Resolved++
		label, ok := s.aliases.Get(id)
		if !ok || label == "" {
			continue
		}
		target, changed := s.rewriter.Apply(el, label)
		if target != nil {
			claimed[target] = true
		}
		if changed {
			rep.Renamed++
			s.logger.Debug("label applied", "id", id, "label", label)
		}
	}
	return rep
}

func (s *Scanner) record(rep Report) {
	if rep.Renamed > 0 {
		labelChanges.WithLabelValues("renamed").Add(float64(rep.Renamed))
	}
	if rep.Restored > 0 {
		labelChanges.WithLabelValues("restored").Add(float64(rep.Restored))
	}
}
