package dom

import (
	"fmt"

	"golang.org/x/net/html"
)

// Tx buffers node replacements and applies them as one unit. If a step
// fails, the steps already applied are undone in reverse order.
type Tx struct {
	a     Adapter
	steps []replaceStep
}

type replaceStep struct {
	parent, newChild, oldChild *html.Node
}

// NewTx starts an empty transaction over a.
func NewTx(a Adapter) *Tx {
	return &Tx{a: a}
}

// Replace queues parent.replaceChild(newChild, oldChild).
func (tx *Tx) Replace(parent, newChild, oldChild *html.Node) {
	tx.steps = append(tx.steps, replaceStep{parent: parent, newChild: newChild, oldChild: oldChild})
}

// Len returns the number of queued steps.
func (tx *Tx) Len() int { return len(tx.steps) }

// Commit validates every step, then applies them in order.
func (tx *Tx) Commit() error {
	for i, s := range tx.steps {
		if s.parent == nil || s.newChild == nil || s.oldChild == nil {
			return fmt.Errorf("dom: tx step %d: %w", i, ErrNilNode)
		}
		if s.oldChild.Parent != s.parent {
			return fmt.Errorf("dom: tx step %d: %w", i, ErrNotChild)
		}
	}
	for i, s := range tx.steps {
		if err := tx.a.ReplaceChild(s.parent, s.newChild, s.oldChild); err != nil {
			if rerr := tx.rollback(i); rerr != nil {
				return fmt.Errorf("dom: tx step %d: %w (rollback: %v)", i, err, rerr)
			}
			return fmt.Errorf("dom: tx step %d: %w", i, err)
		}
	}
	tx.steps = nil
	return nil
}

func (tx *Tx) rollback(applied int) error {
	var firstErr error
	for j := applied - 1; j >= 0; j-- {
		s := tx.steps[j]
		if err := tx.a.ReplaceChild(s.parent, s.oldChild, s.newChild); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
