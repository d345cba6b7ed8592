package console

import (
	"sort"

	"github.com/dantte-lp/blesim/internal/bleconn"
	"github.com/dantte-lp/blesim/internal/node"
	"github.com/dantte-lp/blesim/internal/simclock"
)

// Classifier is the introspection surface common to classifier.Baseline
// and classifier.EAFH: the set of channels each currently treats as
// usable. The console depends on this narrow interface rather than the
// classifier package directly, so it can report on whichever kind a
// scenario configured without a type switch.
type Classifier interface {
	GoodChannels() []uint8
}

// connEntry is one connection registered for inspection, keyed by its
// owning node and discriminator.
type connEntry struct {
	nodeName   string
	discr      bleconn.ConnDiscriminator
	classifier Classifier
}

// Registry is the set of nodes and connections a running simulation
// exposes to the console, built once by cmd/blesim after the scenario is
// wired up.
type Registry struct {
	sched *simclock.Scheduler
	nodes map[string]*node.Node
	conns []connEntry
}

// NewRegistry builds an empty Registry bound to sched, used to compute
// elapsed-time-based derived statistics at inspection time.
func NewRegistry(sched *simclock.Scheduler) *Registry {
	return &Registry{
		sched: sched,
		nodes: make(map[string]*node.Node),
	}
}

// AddNode registers n under its configured name.
func (r *Registry) AddNode(n *node.Node) {
	r.nodes[n.Config.Name] = n
}

// AddConnection registers one connection's classifier for channels-command
// lookup. classifier may be nil if the connection's scenario used no
// classifier.
func (r *Registry) AddConnection(nodeName string, discr bleconn.ConnDiscriminator, classifier Classifier) {
	r.conns = append(r.conns, connEntry{nodeName: nodeName, discr: discr, classifier: classifier})
}

// NodeNames returns every registered node's name, sorted.
func (r *Registry) NodeNames() []string {
	out := make([]string, 0, len(r.nodes))
	for name := range r.nodes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Node returns the named node, or nil if unknown.
func (r *Registry) Node(name string) *node.Node {
	return r.nodes[name]
}

// Now returns the scheduler's current simulated time.
func (r *Registry) Now() simclock.Time { return r.sched.Now() }

// classifierFor returns the classifier registered for (nodeName, discr),
// or nil.
func (r *Registry) classifierFor(nodeName string, discr bleconn.ConnDiscriminator) Classifier {
	for _, e := range r.conns {
		if e.nodeName == nodeName && e.discr == discr {
			return e.classifier
		}
	}
	return nil
}
